package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation is matched by every input validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrUsernameRequired is returned when an account is created without a username.
	ErrUsernameRequired = fmt.Errorf("%w: the user must have a username", ErrValidation)
	// ErrInvalidCredentials covers unknown users, wrong passwords and
	// accounts that cannot log in.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError lists the fields that failed validation and the rule each broke.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = e.Tag()
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("field '%s' failed on the '%s' tag", name, e.Fields[name]))
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
