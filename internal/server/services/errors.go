package services

import (
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError carries every field problem of a request. It matches
// common.ErrInvalidInput with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return common.ErrInvalidInput.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return common.ErrInvalidInput
}
