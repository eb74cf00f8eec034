package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenNotFound      = errors.New("token not found")
	ErrNotFound           = errors.New("not found")
)

// ValidationError carries per-field messages for a 422 response.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{
		Fields: map[string][]string{
			field: {message},
		},
	}
}
