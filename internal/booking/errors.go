package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrSlotOverlap         = errors.New("slot overlaps an existing slot")
	ErrShopNotFound        = errors.New("shop not found")
	ErrShopExists          = errors.New("shop already registered for owner")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrTransient marks timeouts and connection failures. The whole
	// operation is safe to retry: the availability update is conditional.
	ErrTransient = errors.New("transient store error")
)

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
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Transient wraps err so errors.Is(err, ErrTransient) holds while the
// original cause stays reachable.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func IsRetryable(err error) bool { return errors.Is(err, ErrTransient) }

// classify turns context expiry into ErrTransient. Domain errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	return err
}
