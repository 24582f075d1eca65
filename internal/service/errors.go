package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"receiptflow/internal/rules"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

// FieldErrors reports malformed input, one message per field.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// ValidationFailedError lists every consistency check a record failed.
type ValidationFailedError struct {
	Problems []rules.Problem
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Messages returns the human readable check failures.
func (e *ValidationFailedError) Messages() []string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Message)
	}
	return msgs
}
