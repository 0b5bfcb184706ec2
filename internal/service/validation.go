package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError describe un error de validacion asociado a un campo del request.
type ValidationError struct {
	Field   string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrEmailTaken se devuelve cuando el email ya pertenece a otro usuario.
var ErrEmailTaken = &ValidationError{
	Field:   "email",
	Reason:  "duplicate",
	Message: "Email is already registered",
}

const (
	maxEmailLength    = 254
	maxPasswordLength = 72 // limite de bcrypt, en bytes
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func validateEmail(email string) error {
	err := fieldValidator().Var(email, fmt.Sprintf("required,max=%d,email", maxEmailLength))
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].Tag() {
	case "required":
		return &ValidationError{Field: "email", Reason: "required", Message: "This field is required."}
	case "max":
		return &ValidationError{Field: "email", Reason: "max_length", Message: fmt.Sprintf("Ensure this field has no more than %d characters.", maxEmailLength)}
	default:
		return &ValidationError{Field: "email", Reason: "invalid", Message: "Enter a valid email address."}
	}
}

func validatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Reason: "required", Message: "This field is required."}
	}
	if len(password) > maxPasswordLength {
		return &ValidationError{Field: "password", Reason: "max_length", Message: fmt.Sprintf("Ensure this field has no more than %d bytes.", maxPasswordLength)}
	}
	return nil
}
