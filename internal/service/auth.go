package service

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/marker-labs/marker-back/internal/db"
)

type Auth struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewAuth(db *gorm.DB, l *zap.SugaredLogger) *Auth {
	return &Auth{
		db:     db,
		logger: l,
	}
}

// Register creates a user and issues their first token. Email uniqueness is
// checked here so it surfaces as a field error rather than a store failure.
func (s *Auth) Register(name, email, pass string) (*db.User, string, error) {
	var count int64
	res := s.db.Model(&db.User{}).Where("email = ?", email).Count(&count)
	if res.Error != nil {
		return nil, "", errors.Wrap(res.Error, "count users by email")
	}
	if count > 0 {
		return nil, "", NewFieldError("email", "The email has already been taken.")
	}

	hash, err := s.bcryptGen(pass)
	if err != nil {
		return nil, "", errors.Wrap(err, "bcryptGen")
	}

	user := db.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	res = s.db.Create(&user)
	if res.Error != nil {
		return nil, "", errors.Wrap(res.Error, "create user")
	}

	token, err := s.Issue(&user)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login issues a fresh token without revoking any prior ones; a user may
// hold several live sessions.
func (s *Auth) Login(email, pass string) (*db.User, string, error) {
	user := db.User{}
	res := s.db.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", errors.Wrap(res.Error, "find user by email")
	}

	if err := s.bcryptCheck(user.PasswordHash, pass); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.Issue(&user)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Issue mints an opaque token bound to the user and records it durably.
func (s *Auth) Issue(user *db.User) (string, error) {
	token := db.Token{
		Value:  uuid.New().String(),
		UserID: user.ID,
	}
	res := s.db.Create(&token)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "create token")
	}
	return token.Value, nil
}

// Resolve looks up the live association for a token value. Every call hits
// the store; revocation must take effect on the next request.
func (s *Auth) Resolve(value string) (*db.User, error) {
	token := db.Token{}
	res := s.db.Where("value = ?", value).First(&token)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Wrap(res.Error, "find token")
	}

	user := db.User{}
	res = s.db.First(&user, token.UserID)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "find token user")
	}

	return &user, nil
}

// Revoke deletes exactly the given token; other live tokens for the same
// user keep working.
func (s *Auth) Revoke(value string) error {
	res := s.db.Where("value = ?", value).Delete(&db.Token{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete token")
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *Auth) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), 14)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Auth) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
