package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/marker-labs/marker-back/internal/config"
	"github.com/marker-labs/marker-back/internal/db"
	"github.com/marker-labs/marker-back/internal/service"
)

const (
	contextKeyUser  = "user"
	contextKeyToken = "token"
)

type (
	RegisterReq struct {
		Name                 string `json:"name" validate:"required,max=255"`
		Email                string `json:"email" validate:"required,email,max=255"`
		Password             string `json:"password" validate:"required,min=8"`
		PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	BookmarkReq struct {
		Title       string  `json:"title" validate:"required,max=255"`
		URL         string  `json:"url" validate:"required,url,max=2048"`
		Description *string `json:"description" validate:"omitempty,max=1000"`
	}

	UserResp struct {
		ID        uint64    `json:"id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	BookmarkResp struct {
		ID          uint64    `json:"id"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		Description *string   `json:"description,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	AuthResp struct {
		Message string   `json:"message,omitempty"`
		User    UserResp `json:"user"`
		Token   string   `json:"token"`
	}

	MessageResp struct {
		Message string `json:"message"`
	}

	ValidationResp struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		auth      *service.Auth
		bookmarks *service.Bookmark
		logger    *zap.SugaredLogger
	}
)

// NewServer builds the handler set; NewHTTPServer binds it to a listener
// through the fx lifecycle.
func NewServer(auth *service.Auth, bookmarks *service.Bookmark, logger *zap.SugaredLogger) *HTTPServer {
	return &HTTPServer{
		auth:      auth,
		bookmarks: bookmarks,
		logger:    logger,
	}
}

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, auth *service.Auth, bookmarks *service.Bookmark, logger *zap.SugaredLogger) *HTTPServer {
	instance := NewServer(auth, bookmarks, logger)

	e := echo.New()
	instance.RegisterRoutes(e)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return instance
}

// RegisterRoutes wires routes and middleware onto an echo instance. Split
// out of the constructor so handler tests can run without fx.
func (s *HTTPServer) RegisterRoutes(e *echo.Echo) {
	e.POST("/register", s.Register)
	e.POST("/login", s.Login)
	e.POST("/logout", s.Logout)

	bookmarkG := e.Group("/bookmarks")
	bookmarkG.GET("", s.BookmarkList)
	bookmarkG.POST("", s.BookmarkCreate)
	bookmarkG.GET("/:id", s.BookmarkShow)
	bookmarkG.PUT("/:id", s.BookmarkUpdate)
	bookmarkG.DELETE("/:id", s.BookmarkDelete)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyDump(func(c echo.Context, reqBody, resBody []byte) {
		if len(reqBody) > 0 {
			s.logger.Debugw("request body",
				"method", c.Request().Method,
				"path", c.Path(),
				"body", string(censorBody(reqBody)))
		}
	}))

	e.Use(s.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return s.renderError(c, err)
	}

	user, token, err := s.auth.Register(req.Name, req.Email, req.Password)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusCreated, AuthResp{
		Message: "User registered successfully",
		User:    toUserResp(user),
		Token:   token,
	})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return s.renderError(c, err)
	}

	user, token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusOK, AuthResp{
		User:  toUserResp(user),
		Token: token,
	})
}

func (s *HTTPServer) Logout(c echo.Context) error {
	token, ok := c.Get(contextKeyToken).(string)
	if !ok || token == "" {
		return s.renderError(c, service.ErrTokenNotFound)
	}

	if err := s.auth.Revoke(token); err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusOK, MessageResp{Message: "Logged out successfully"})
}

func (s *HTTPServer) BookmarkList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return s.renderError(c, err)
	}

	bookmarks, err := s.bookmarks.List(user)
	if err != nil {
		return s.renderError(c, err)
	}

	resp := make([]BookmarkResp, len(bookmarks))
	for i := range bookmarks {
		resp[i] = toBookmarkResp(&bookmarks[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) BookmarkCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return s.renderError(c, err)
	}

	req := BookmarkReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return s.renderError(c, err)
	}

	model, err := s.bookmarks.Create(user, req.Title, req.URL, req.Description)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusCreated, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkShow(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return s.renderError(c, err)
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return s.renderError(c, err)
	}

	model, err := s.bookmarks.Get(user, id)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkUpdate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return s.renderError(c, err)
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return s.renderError(c, err)
	}

	req := BookmarkReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return s.renderError(c, err)
	}

	model, err := s.bookmarks.Update(user, id, req.Title, req.URL, req.Description)
	if err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkDelete(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return s.renderError(c, err)
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return s.renderError(c, err)
	}

	if err := s.bookmarks.Delete(user, id); err != nil {
		return s.renderError(c, err)
	}

	return c.JSON(http.StatusOK, MessageResp{Message: "Bookmark deleted successfully"})
}

// AuthMiddleware resolves the bearer token before any handler runs, so no
// mutating effect can precede authentication.
func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == "/register" || c.Path() == "/login" || c.Path() == "/ping" {
			return next(c)
		}

		token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" {
			return c.JSON(http.StatusUnauthorized, MessageResp{Message: "Unauthenticated."})
		}

		user, err := s.auth.Resolve(token)
		if err != nil {
			if !errors.Is(err, service.ErrTokenNotFound) {
				s.logger.Errorw("resolve token", "error", err)
			}
			return c.JSON(http.StatusUnauthorized, MessageResp{Message: "Unauthenticated."})
		}

		c.Set(contextKeyUser, user)
		c.Set(contextKeyToken, token)
		return next(c)
	}
}

func (s *HTTPServer) renderError(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, ValidationResp{
			Message: "The given data was invalid.",
			Errors:  ve.Fields,
		})
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, MessageResp{Message: "Invalid login details"})
	case errors.Is(err, service.ErrTokenNotFound):
		return c.JSON(http.StatusUnauthorized, MessageResp{Message: "Unauthenticated."})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, MessageResp{Message: "Not found"})
	}

	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}

	s.logger.Errorw("internal error", "error", err)
	return c.JSON(http.StatusInternalServerError, MessageResp{Message: "Internal server error"})
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func BindAndValidate(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(v); err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok {
			return toValidationError(ves)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get(contextKeyUser).(*db.User)
	if !ok || user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid path param '%s'", name))
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		// A non-numeric id can never exist, treat it like an absent one.
		return 0, service.ErrNotFound
	}
	return vv, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func toUserResp(u *db.User) UserResp {
	return UserResp{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toBookmarkResp(b *db.Bookmark) BookmarkResp {
	return BookmarkResp{
		ID:          b.ID,
		Title:       b.Title,
		URL:         b.URL,
		Description: b.Description,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toValidationError(ves validator.ValidationErrors) *service.ValidationError {
	fields := map[string][]string{}
	for _, fe := range ves {
		name := jsonFieldName(fe.Field())
		fields[name] = append(fields[name], fieldMessage(name, fe))
	}
	return &service.ValidationError{Fields: fields}
}

func jsonFieldName(structField string) string {
	switch structField {
	case "PasswordConfirmation":
		return "password_confirmation"
	case "URL":
		return "url"
	default:
		return strings.ToLower(structField)
	}
}

func fieldMessage(name string, fe validator.FieldError) string {
	switch name + "." + fe.Tag() {
	case "title.required":
		return "The bookmark title is required."
	case "url.required":
		return "The bookmark URL is required."
	case "url.url":
		return "Please enter a valid URL."
	case "description.max":
		return "The description may not be greater than 1000 characters."
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", name)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", name, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", name, fe.Param())
	case "eqfield":
		return "The password confirmation does not match."
	default:
		return fmt.Sprintf("The %s is invalid.", name)
	}
}

// censorBody hides credential values before a request body reaches the logs.
func censorBody(body []byte) []byte {
	m := map[string]interface{}{}
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	for _, key := range []string{"password", "password_confirmation"} {
		if _, ok := m[key]; ok {
			m[key] = "$censored"
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
