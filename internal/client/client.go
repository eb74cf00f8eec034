// Package client is a Go consumer of the bookmark API. It keeps the current
// session in memory and in a durable store, injects the bearer token into
// every outgoing request, and drops the session as soon as any call comes
// back unauthenticated.
package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type (
	User struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Bookmark struct {
		ID          uint64    `json:"id"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		Description *string   `json:"description,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	BookmarkInput struct {
		Title       string  `json:"title"`
		URL         string  `json:"url"`
		Description *string `json:"description,omitempty"`
	}

	// APIError is any non-2xx response, with the per-field messages when
	// the server rejected the payload.
	APIError struct {
		StatusCode int
		Message    string
		Errors     map[string][]string
	}

	authPayload struct {
		Message string `json:"message"`
		User    User   `json:"user"`
		Token   string `json:"token"`
	}

	errorPayload struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}

	Client struct {
		http  *resty.Client
		store *SessionStore

		mu      sync.Mutex
		session *Session
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// New builds a client against baseURL, restoring any session the store holds.
// The token lives on this client instance only; two clients in one process
// never share auth state.
func New(baseURL string, store *SessionStore) (*Client, error) {
	instance := Client{
		http:  resty.New().SetHostURL(baseURL),
		store: store,
	}

	session, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "restore session")
	}
	instance.session = session

	instance.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if s := instance.currentSession(); s != nil {
			req.SetHeader("Authorization", "Bearer "+s.Token)
		}
		return nil
	})
	instance.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.StatusCode() == http.StatusUnauthorized {
			// The server no longer honors our token; forget it.
			return instance.clearSession()
		}
		return nil
	})

	return &instance, nil
}

func (c *Client) Authenticated() bool {
	return c.currentSession() != nil
}

func (c *Client) CurrentUser() *User {
	s := c.currentSession()
	if s == nil {
		return nil
	}
	u := s.User
	return &u
}

func (c *Client) Register(name, email, password, passwordConfirmation string) (*User, error) {
	payload := authPayload{}
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"name":                  name,
			"email":                 email,
			"password":              password,
			"password_confirmation": passwordConfirmation,
		}).
		SetResult(&payload).
		Post("/register")
	if err != nil {
		return nil, errors.Wrap(err, "post register")
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, apiError(resp)
	}

	if err := c.setSession(&Session{Token: payload.Token, User: payload.User}); err != nil {
		return nil, err
	}
	return &payload.User, nil
}

func (c *Client) Login(email, password string) (*User, error) {
	payload := authPayload{}
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"email":    email,
			"password": password,
		}).
		SetResult(&payload).
		Post("/login")
	if err != nil {
		return nil, errors.Wrap(err, "post login")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}

	if err := c.setSession(&Session{Token: payload.Token, User: payload.User}); err != nil {
		return nil, err
	}
	return &payload.User, nil
}

// Logout revokes the server-side token and clears local state either way.
func (c *Client) Logout() error {
	if !c.Authenticated() {
		return nil
	}

	resp, err := c.http.R().Post("/logout")
	if err != nil {
		return errors.Wrap(err, "post logout")
	}

	if clearErr := c.clearSession(); clearErr != nil {
		return clearErr
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusUnauthorized {
		return apiError(resp)
	}
	return nil
}

func (c *Client) Bookmarks() ([]Bookmark, error) {
	bookmarks := make([]Bookmark, 0)
	resp, err := c.http.R().
		SetResult(&bookmarks).
		Get("/bookmarks")
	if err != nil {
		return nil, errors.Wrap(err, "get bookmarks")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}
	return bookmarks, nil
}

func (c *Client) CreateBookmark(input BookmarkInput) (*Bookmark, error) {
	bookmark := Bookmark{}
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(&input).
		SetResult(&bookmark).
		Post("/bookmarks")
	if err != nil {
		return nil, errors.Wrap(err, "post bookmark")
	}
	if resp.StatusCode() != http.StatusCreated {
		return nil, apiError(resp)
	}
	return &bookmark, nil
}

func (c *Client) GetBookmark(id uint64) (*Bookmark, error) {
	bookmark := Bookmark{}
	resp, err := c.http.R().
		SetResult(&bookmark).
		Get(fmt.Sprintf("/bookmarks/%d", id))
	if err != nil {
		return nil, errors.Wrap(err, "get bookmark")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}
	return &bookmark, nil
}

func (c *Client) UpdateBookmark(id uint64, input BookmarkInput) (*Bookmark, error) {
	bookmark := Bookmark{}
	resp, err := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(&input).
		SetResult(&bookmark).
		Put(fmt.Sprintf("/bookmarks/%d", id))
	if err != nil {
		return nil, errors.Wrap(err, "put bookmark")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, apiError(resp)
	}
	return &bookmark, nil
}

func (c *Client) DeleteBookmark(id uint64) error {
	resp, err := c.http.R().
		Delete(fmt.Sprintf("/bookmarks/%d", id))
	if err != nil {
		return errors.Wrap(err, "delete bookmark")
	}
	if resp.StatusCode() != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *Client) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(session *Session) error {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return c.store.Save(session)
}

func (c *Client) clearSession() error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return c.store.Clear()
}

func apiError(resp *resty.Response) error {
	payload := errorPayload{}
	// Best effort; the body may not be JSON at all.
	_ = json.Unmarshal(resp.Body(), &payload)
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode())
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    payload.Message,
		Errors:     payload.Errors,
	}
}
