package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marker-labs/marker-back/internal/db/dbtest"
	"github.com/marker-labs/marker-back/internal/service"
)

func TestCensorBody(t *testing.T) {
	b := `{
		"email": "email@email.com",
		"password": "123456789123",
		"password_confirmation": "123456789123"
	}`

	got := censorBody([]byte(b))
	assert.JSONEq(t, `{
		"email": "email@email.com",
		"password": "$censored",
		"password_confirmation": "$censored"
	}`, string(got))
}

func newTestApp(t *testing.T) *echo.Echo {
	t.Helper()

	conn := dbtest.New(t)
	logger := zap.NewNop().Sugar()
	server := NewServer(service.NewAuth(conn, logger), service.NewBookmark(conn, logger), logger)

	e := echo.New()
	server.RegisterRoutes(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func registerUser(t *testing.T, e *echo.Echo, name, email, password string) AuthResp {
	t.Helper()

	body := fmt.Sprintf(`{"name": %q, "email": %q, "password": %q, "password_confirmation": %q}`,
		name, email, password, password)
	rec := doJSON(t, e, http.MethodPost, "/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := AuthResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func TestAuthScenario(t *testing.T) {
	e := newTestApp(t)

	registered := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")
	assert.Equal(t, "alice@example.com", registered.User.Email)

	rec := doJSON(t, e, http.MethodPost, "/login", "", `{"email": "alice@example.com", "password": "wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	msg := MessageResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "Invalid login details", msg.Message)

	rec = doJSON(t, e, http.MethodPost, "/login", "", `{"email": "alice@example.com", "password": "pw12345678"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	login := AuthResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rec = doJSON(t, e, http.MethodPost, "/bookmarks", login.Token, `{"title": "Example", "url": "https://example.org"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Example", created.Title)

	rec = doJSON(t, e, http.MethodGet, "/bookmarks", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := []BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = doJSON(t, e, http.MethodDelete, fmt.Sprintf("/bookmarks/%d", created.ID), login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/bookmarks", login.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = []BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 0)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestApp(t)

	t.Run("short password and mismatched confirmation", func(t *testing.T) {
		rec := doJSON(t, e, http.MethodPost, "/register", "",
			`{"name": "Alice", "email": "not-an-email", "password": "short", "password_confirmation": "different"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "The given data was invalid.", resp.Message)
		assert.Contains(t, resp.Errors, "email")
		assert.Contains(t, resp.Errors, "password")
		assert.Contains(t, resp.Errors, "password_confirmation")
	})

	t.Run("name too long", func(t *testing.T) {
		body := fmt.Sprintf(`{"name": %q, "email": "long@example.com", "password": "pw12345678", "password_confirmation": "pw12345678"}`,
			strings.Repeat("a", 256))
		rec := doJSON(t, e, http.MethodPost, "/register", "", body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"The name may not be greater than 255 characters."}, resp.Errors["name"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		registerUser(t, e, "Alice", "alice@example.com", "pw12345678")

		rec := doJSON(t, e, http.MethodPost, "/register", "",
			`{"name": "Another Alice", "email": "alice@example.com", "password": "pw12345678", "password_confirmation": "pw12345678"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Errors, "email")
	})
}

func TestBookmarkValidation(t *testing.T) {
	e := newTestApp(t)
	session := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, `{}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"The bookmark title is required."}, resp.Errors["title"])
		assert.Equal(t, []string{"The bookmark URL is required."}, resp.Errors["url"])
	})

	t.Run("title too long", func(t *testing.T) {
		body := fmt.Sprintf(`{"title": %q, "url": "https://example.com"}`, strings.Repeat("a", 256))
		rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"The title may not be greater than 255 characters."}, resp.Errors["title"])
	})

	t.Run("url too long", func(t *testing.T) {
		// Well-formed URL, one character over the limit.
		body := fmt.Sprintf(`{"title": "Docs", "url": %q}`, "https://example.com/"+strings.Repeat("a", 2029))
		rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"The url may not be greater than 2048 characters."}, resp.Errors["url"])
	})

	t.Run("invalid url", func(t *testing.T) {
		rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, `{"title": "Docs", "url": "not a url"}`)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"Please enter a valid URL."}, resp.Errors["url"])
	})

	t.Run("description too long", func(t *testing.T) {
		body := fmt.Sprintf(`{"title": "Docs", "url": "https://example.com", "description": %q}`,
			strings.Repeat("a", 1001))
		rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, body)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		resp := ValidationResp{}
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"The description may not be greater than 1000 characters."}, resp.Errors["description"])
	})
}

func TestAuthRequired(t *testing.T) {
	e := newTestApp(t)

	rec := doJSON(t, e, http.MethodGet, "/bookmarks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, e, http.MethodGet, "/bookmarks", "not-a-real-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	e := newTestApp(t)
	session := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")

	rec := doJSON(t, e, http.MethodPost, "/logout", session.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	msg := MessageResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "Logged out successfully", msg.Message)

	// The revoked token no longer authenticates anything.
	rec = doJSON(t, e, http.MethodGet, "/bookmarks", session.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/logout", session.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCrossUserAccessHiddenAsNotFound(t *testing.T) {
	e := newTestApp(t)
	alice := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")
	bob := registerUser(t, e, "Bob", "bob@example.com", "pw12345678")

	rec := doJSON(t, e, http.MethodPost, "/bookmarks", alice.Token, `{"title": "Docs", "url": "https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := fmt.Sprintf("/bookmarks/%d", created.ID)

	rec = doJSON(t, e, http.MethodGet, path, bob.Token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, e, http.MethodPut, path, bob.Token, `{"title": "Mine now", "url": "https://example.org"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, e, http.MethodDelete, path, bob.Token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// An id that was never assigned looks exactly the same.
	rec = doJSON(t, e, http.MethodGet, "/bookmarks/99999", bob.Token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSoftDeletedBookmark(t *testing.T) {
	e := newTestApp(t)
	session := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")

	rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token, `{"title": "Docs", "url": "https://example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := fmt.Sprintf("/bookmarks/%d", created.ID)
	rec = doJSON(t, e, http.MethodDelete, path, session.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleted bookmarks are invisible to updates too.
	rec = doJSON(t, e, http.MethodPut, path, session.Token, `{"title": "Revived", "url": "https://example.org"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookmarkShowAndUpdate(t *testing.T) {
	e := newTestApp(t)
	session := registerUser(t, e, "Alice", "alice@example.com", "pw12345678")

	rec := doJSON(t, e, http.MethodPost, "/bookmarks", session.Token,
		`{"title": "Docs", "url": "https://example.com", "description": "ref"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := fmt.Sprintf("/bookmarks/%d", created.ID)

	rec = doJSON(t, e, http.MethodGet, path, session.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Docs", got.Title)
	assert.Equal(t, "https://example.com", got.URL)
	require.NotNil(t, got.Description)
	assert.Equal(t, "ref", *got.Description)

	rec = doJSON(t, e, http.MethodPut, path, session.Token, `{"title": "Better docs", "url": "https://example.org"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := BookmarkResp{}
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Better docs", updated.Title)
	assert.Nil(t, updated.Description)
}
