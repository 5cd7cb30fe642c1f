package invoices

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrItemNotFound    = errors.New("invoice item not found on this invoice")
	ErrDuplicateNumber = errors.New("an invoice with this number already exists")
	ErrValidation      = errors.New("invoice validation failed")
)

// ValidationError lists rejected fields keyed by request path. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports ErrValidation equivalence.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
