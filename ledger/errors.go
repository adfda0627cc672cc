/*
errors.go - Centralized error types for the billing ledger

PURPOSE:
  All error kinds in one place so the HTTP layer, the CLI and the stores
  agree on what a failure means. Stores and services wrap these errors
  with context; callers classify them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Malformed or out-of-range input (422)
  2. Payment errors - Amount outside the permitted ceiling (400)
  3. Lookup errors - Missing client/project/invoice (404)
  4. Concurrency errors - Optimistic version check failed (409)
  5. Delivery errors - Outbound invoice delivery failed (502)

SEE ALSO:
  - validate.go: Produces ValidationError
  - payments.go: Produces InvalidPaymentAmountError
  - api/handlers.go: Maps these errors to status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input fails field or business-rule checks.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidPaymentAmount is returned when a payment is non-positive or
	// exceeds the amount still receivable.
	ErrInvalidPaymentAmount = errors.New("invalid payment amount")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateInvoiceNumber is returned when an invoice number is reused.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	// ErrDeliveryFailure is returned when an invoice could not be sent.
	ErrDeliveryFailure = errors.New("invoice delivery failed")

	// ErrCorruptRecord is returned when a stored value cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrConfirmationRequired is returned when a destructive operation was
	// requested without explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes one failed field rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError collects every failed rule for one entity.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldMap flattens the errors for JSON responses.
func (e *ValidationError) FieldMap() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func newFieldError(entity, field, rule, message string) *ValidationError {
	return &ValidationError{Entity: entity, Fields: []FieldError{{Field: field, Rule: rule, Message: message}}}
}

// InvalidPaymentAmountError reports the ceiling a payment was checked against.
type InvalidPaymentAmountError struct {
	InvoiceID InvoiceID
	Amount    Money
	Ceiling   Money
	Retention bool
}

func (e *InvalidPaymentAmountError) Error() string {
	if !e.Amount.IsPositive() {
		return fmt.Sprintf("invalid payment amount: %s must be greater than zero", e.Amount)
	}
	what := "remaining receivable"
	if e.Retention {
		what = "outstanding retention"
	}
	return fmt.Sprintf("invalid payment amount: %s exceeds %s %s", e.Amount, what, e.Ceiling)
}

func (e *InvalidPaymentAmountError) Unwrap() error {
	return ErrInvalidPaymentAmount
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound[T ~string](kind string, id T) error {
	return &NotFoundError{Kind: kind, ID: string(id)}
}

// ClientNotFound, ProjectNotFound and InvoiceNotFound are used by store implementations.
func ClientNotFound(id ClientID) error   { return notFound("client", id) }
func ProjectNotFound(id ProjectID) error { return notFound("project", id) }
func InvoiceNotFound(id InvoiceID) error { return notFound("invoice", id) }

// DeliveryError wraps the transport failure of a send attempt.
type DeliveryError struct {
	InvoiceID InvoiceID
	Channel   string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("invoice %s delivery via %s failed: %v", e.InvoiceID, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailure, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDeliveryFailure)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPaymentAmount) ||
		errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrConfirmationRequired)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
