package apperrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Standardized risk errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrNotFound           = errors.New("position not found")
	ErrPriceUnavailable   = errors.New("price unavailable")
)

// InputError describes a rejected request field
type InputError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InputError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NewInputError builds an InputError
func NewInputError(field string, value interface{}, reason string) error {
	return &InputError{Field: field, Value: value, Reason: reason}
}

// MarginError reports a margin shortfall. PositionID is zero for account-level checks.
type MarginError struct {
	PositionID int64
	Required   decimal.Decimal
	Available  decimal.Decimal
	Reason     string
}

func (e *MarginError) Error() string {
	msg := fmt.Sprintf("insufficient margin: required %s, available %s", e.Required, e.Available)
	if e.PositionID != 0 {
		msg = fmt.Sprintf("%s (position #%d)", msg, e.PositionID)
	}
	if e.Reason != "" {
		msg = msg + ": " + e.Reason
	}
	return msg
}

func (e *MarginError) Unwrap() error { return ErrInsufficientMargin }

// NotFoundError reports an unknown or already closed position id
type NotFoundError struct {
	PositionID int64
	Closed     bool
}

func (e *NotFoundError) Error() string {
	if e.Closed {
		return fmt.Sprintf("position #%d not found: already closed", e.PositionID)
	}
	return fmt.Sprintf("position #%d not found", e.PositionID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PriceError reports a failed or stale price lookup for one symbol
type PriceError struct {
	Symbol string
	Cause  error
}

func (e *PriceError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("price unavailable for %s", e.Symbol)
	}
	return fmt.Sprintf("price unavailable for %s: %v", e.Symbol, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *PriceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPriceUnavailable}
	}
	return []error{ErrPriceUnavailable, e.Cause}
}

// PriceErrors aggregates per-symbol failures from one lookup
type PriceErrors struct {
	Errors []error
}

// NewPriceErrors returns nil for an empty slice
func NewPriceErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &PriceErrors{Errors: errs}
}

func (e *PriceErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%d price lookup(s) failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *PriceErrors) Unwrap() []error { return e.Errors }

// BySymbol indexes the PriceError entries of err by symbol. Errors that are
// not tied to a symbol are returned under the empty key.
func BySymbol(err error) map[string]error {
	out := make(map[string]error)
	if err == nil {
		return out
	}
	var multi *PriceErrors
	if errors.As(err, &multi) {
		for _, e := range multi.Errors {
			var pe *PriceError
			if errors.As(e, &pe) {
				out[pe.Symbol] = pe
			} else {
				out[""] = e
			}
		}
		return out
	}
	var pe *PriceError
	if errors.As(err, &pe) {
		out[pe.Symbol] = pe
		return out
	}
	out[""] = err
	return out
}
