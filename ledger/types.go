/*
Package ledger provides the invoicing and billing engine.

PURPOSE:
  This package holds everything that decides a number: the money type and
  its single rounding policy, the ledger entities (Client, Project, Invoice,
  Payment, CompanySettings), the financial formula engine that derives tax,
  retention, certified amount, received amount and balance due from an
  invoice, the aggregate layer that sums those figures across many invoices,
  and the payment/retention workflow that mutates invoices.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A fixed-precision currency amount (shopspring/decimal)
  - Quantize: The one rounding policy (2 dp, half away from zero)
  - Identifiers: Type-safe IDs so a ClientID never passes as an InvoiceID
  - Enumerations: retention type, payment mode, invoice and project status

DESIGN PRINCIPLES:
  1. One formula: every derived figure comes from ComputeInvoiceFinancials
  2. Precision: decimal arithmetic throughout, rounding only at quantization points
  3. Type Safety: enumerated statuses instead of free-text comparisons
  4. Auditability: payments are append-only records

USAGE:
  inv := ledger.Invoice{ContractAmount: ledger.MustMoney("100000"), ...}
  fin := ledger.ComputeInvoiceFinancials(inv)
  fmt.Println(fin.BalanceDue) // 118000.00

SEE ALSO:
  - financials.go: The formula engine
  - aggregate.go: Set-level sums and dashboard reports
  - service.go: Workflow operations over a TxStore
*/
package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Currency amount with a single rounding policy
// =============================================================================

// MoneyScale is the number of fractional digits kept on stored and displayed amounts.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Money is an immutable currency amount. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

func MoneyFromInt(v int64) Money { return Money{d: decimal.NewFromInt(v)} }

// ParseMoney parses a decimal string. An empty string is zero.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustMoney parses s and panics on malformed input. Intended for literals.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Quantize rounds to MoneyScale places, half away from zero.
func (m Money) Quantize() Money { return Money{d: m.d.Round(MoneyScale)} }

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// MulPercent returns m * pct / 100 without rounding.
func (m Money) MulPercent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(hundred)}
}

func (m Money) IsZero() bool                    { return m.d.IsZero() }
func (m Money) IsPositive() bool                { return m.d.IsPositive() }
func (m Money) IsNegative() bool                { return m.d.IsNegative() }
func (m Money) Equal(o Money) bool              { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool        { return m.d.GreaterThan(o.d) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) LessThan(o Money) bool           { return m.d.LessThan(o.d) }

// Max returns the larger of m and o.
func (m Money) Max(o Money) Money {
	if m.LessThan(o) {
		return o
	}
	return m
}

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if m.GreaterThan(o) {
		return o
	}
	return m
}

// Float64 is for display and validation only, never for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// String renders the amount with exactly MoneyScale decimals.
func (m Money) String() string { return m.d.StringFixed(MoneyScale) }

// MarshalJSON renders the amount as a quoted fixed-point string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a quoted decimal string, a bare number or null.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = Money{}
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as exact decimal text.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

// Scan implements sql.Scanner. NULL scans as zero.
func (m *Money) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = Money{}
		return nil
	case string:
		parsed, err := ParseMoney(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	case int64:
		*m = MoneyFromInt(v)
		return nil
	case float64:
		*m = Money{d: decimal.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T into Money", ErrCorruptRecord, value)
	}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type ProjectID string
type InvoiceID string
type PaymentID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// RetentionType selects which of the two retention fields is authoritative.
type RetentionType string

const (
	RetentionPercent RetentionType = "percent"
	RetentionAmount  RetentionType = "amount"
)

// PaymentMode is how money moved.
type PaymentMode string

const (
	ModeBank   PaymentMode = "bank"
	ModeCheque PaymentMode = "cheque"
	ModeCash   PaymentMode = "cash"
	ModeOnline PaymentMode = "online"
)

var paymentModeLabels = map[PaymentMode]string{
	ModeBank:   "Bank Transfer",
	ModeCheque: "Cheque",
	ModeCash:   "Cash",
	ModeOnline: "Online",
}

// Label is the human-readable name of the mode.
func (m PaymentMode) Label() string {
	if l, ok := paymentModeLabels[m]; ok {
		return l
	}
	return string(m)
}

// ParsePaymentMode accepts a code ("bank") or a label ("Bank Transfer").
// An empty string yields ModeBank.
func ParsePaymentMode(s string) (PaymentMode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModeBank, nil
	}
	for mode, label := range paymentModeLabels {
		if strings.EqualFold(s, string(mode)) || strings.EqualFold(s, label) {
			return mode, nil
		}
	}
	return "", &ValidationError{Entity: "payment", Fields: []FieldError{{
		Field: "payment_mode", Rule: "oneof", Message: "Must be one of: bank cheque cash online",
	}}}
}

// InvoiceStatus is the stored settlement state of an invoice. Overdue is a
// derived view (see Flags), never stored.
type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "Pending"
	StatusPaid    InvoiceStatus = "Paid"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectPending   ProjectStatus = "Pending"
)
