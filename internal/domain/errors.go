package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("resource belongs to another tenant")
	ErrDuplicateName = errors.New("subscriber name already exists")
	ErrNotRetryable  = errors.New("delivery cannot be retried")
)

// ValidationError lists the fields of a request that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
