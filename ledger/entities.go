package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLIENT - Leaf entity, referenced by projects
// =============================================================================

type Client struct {
	ID            ClientID  `json:"id"`
	Name          string    `json:"name" validate:"required,max=100"`
	Phone         string    `json:"phone" validate:"required,max=15"`
	Email         string    `json:"email" validate:"required,email"`
	Address       string    `json:"address"`
	GSTNumber     string    `json:"gst_number" validate:"max=20"`
	PANNumber     string    `json:"pan_number" validate:"max=20"`
	ContactPerson string    `json:"contact_person" validate:"max=100"`
	CreatedAt     time.Time `json:"created_at"`
}

// =============================================================================
// PROJECT - Belongs to one client, owns invoices
// =============================================================================

// DefaultProjectGSTPercent is the combined GST rate assumed for a new project.
var DefaultProjectGSTPercent = decimal.NewFromInt(18)

type Project struct {
	ID               ProjectID       `json:"id"`
	ClientID         ClientID        `json:"client_id" validate:"required"`
	Name             string          `json:"project_name" validate:"required,max=200"`
	WorkOrderNo      string          `json:"work_order_no" validate:"max=100"`
	ContractAmount   Money           `json:"contract_amount" validate:"gte=0"`
	RetentionPercent decimal.Decimal `json:"retention_percent" validate:"gte=0,lte=100"`
	GSTPercent       decimal.Decimal `json:"gst_percent" validate:"gte=0,lte=100"`
	StartDate        Date            `json:"start_date"`
	EndDate          Date            `json:"end_date"`
	ScopeOfWork      string          `json:"scope_of_work"`
	ProjectManager   string          `json:"project_manager" validate:"max=100"`
	Status           ProjectStatus   `json:"status" validate:"oneof=Active Completed Pending"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Normalize applies defaults and the currency scale.
func (p *Project) Normalize() {
	p.ContractAmount = p.ContractAmount.Quantize()
	p.RetentionPercent = p.RetentionPercent.Round(MoneyScale)
	p.GSTPercent = p.GSTPercent.Round(MoneyScale)
	if p.Status == "" {
		p.Status = ProjectActive
	}
}

// =============================================================================
// INVOICE - The record every financial figure is derived from
// =============================================================================

// Invoice stores only inputs. Tax, retention, certified amount, received
// amount and balance due are never stored; see ComputeInvoiceFinancials.
type Invoice struct {
	ID        InvoiceID `json:"id"`
	ProjectID ProjectID `json:"project_id" validate:"required"`
	Number    string    `json:"invoice_number" validate:"required,max=50"`
	RABillNo  string    `json:"ra_bill_no" validate:"max=50"`

	// Contract
	ContractAmount Money `json:"contract_amount" validate:"gte=0"`
	InvoiceDate    Date  `json:"invoice_date" validate:"required"`
	DueDate        Date  `json:"due_date"`

	// Tax
	CGSTPercent decimal.Decimal `json:"cgst_percent" validate:"gte=0,lte=100"`
	SGSTPercent decimal.Decimal `json:"sgst_percent" validate:"gte=0,lte=100"`

	// Retention
	RetentionType         RetentionType   `json:"retention_type" validate:"oneof=percent amount"`
	RetentionPercent      decimal.Decimal `json:"retention_percent" validate:"gte=0,lte=100"`
	RetentionFixedAmount  Money           `json:"retention_fixed_amount" validate:"gte=0"`
	RetentionDueDate      Date            `json:"retention_due_date"`
	RetentionReleased     bool            `json:"retention_released"`
	RetentionReleasedDate Date            `json:"retention_released_date"`
	RetentionPaidAmount   Money           `json:"retention_paid_amount" validate:"gte=0"`

	// Deductions and payment
	TDSAmount         Money         `json:"tds_amount" validate:"gte=0"`
	OtherDeductions   Money         `json:"other_deductions" validate:"gte=0"`
	PaidAmount        Money         `json:"paid_amount" validate:"gte=0"`
	LastPaymentAmount Money         `json:"last_payment_amount" validate:"gte=0"`
	PaymentMode       PaymentMode   `json:"payment_mode" validate:"oneof=bank cheque cash online"`
	PaymentDate       Date          `json:"payment_date"`
	TDSVerified       bool          `json:"tds_verified"`
	TDSVerifiedDate   Date          `json:"tds_verified_date"`
	Status            InvoiceStatus `json:"status" validate:"oneof=Pending Paid"`

	// Version is the optimistic-lock counter, bumped by every store update.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize enforces the persisted-form invariants. It is applied before
// every store write:
//   - currency fields carry exactly two decimals
//   - only the field selected by RetentionType may be non-zero
//   - RetentionReleasedDate is set iff RetentionReleased
func (inv *Invoice) Normalize(today Date) {
	inv.ContractAmount = inv.ContractAmount.Quantize()
	inv.PaidAmount = inv.PaidAmount.Quantize()
	inv.LastPaymentAmount = inv.LastPaymentAmount.Quantize()
	inv.TDSAmount = inv.TDSAmount.Quantize()
	inv.OtherDeductions = inv.OtherDeductions.Quantize()
	inv.RetentionPaidAmount = inv.RetentionPaidAmount.Quantize()
	inv.CGSTPercent = inv.CGSTPercent.Round(MoneyScale)
	inv.SGSTPercent = inv.SGSTPercent.Round(MoneyScale)

	if inv.RetentionType == "" {
		inv.RetentionType = RetentionPercent
	}
	if inv.RetentionType == RetentionPercent {
		inv.RetentionFixedAmount = Money{}
		inv.RetentionPercent = inv.RetentionPercent.Round(MoneyScale)
	} else {
		inv.RetentionPercent = decimal.Zero
		inv.RetentionFixedAmount = inv.RetentionFixedAmount.Quantize()
	}

	if inv.RetentionReleased && inv.RetentionReleasedDate.IsZero() {
		inv.RetentionReleasedDate = today
	} else if !inv.RetentionReleased {
		inv.RetentionReleasedDate = Date{}
	}

	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if inv.PaymentMode == "" {
		inv.PaymentMode = ModeBank
	}
}

func (inv Invoice) IsPaid() bool { return inv.Status == StatusPaid }

// =============================================================================
// PAYMENT - Immutable audit record
// =============================================================================

type Payment struct {
	ID        PaymentID   `json:"id"`
	InvoiceID InvoiceID   `json:"invoice_id" validate:"required"`
	Amount    Money       `json:"amount" validate:"gt=0"`
	Date      Date        `json:"payment_date" validate:"required"`
	Mode      PaymentMode `json:"payment_mode" validate:"oneof=bank cheque cash online"`
	Notes     string      `json:"notes"`
	Retention bool        `json:"applies_to_retention"`
	CreatedAt time.Time   `json:"created_at"`
}

// =============================================================================
// COMPANY SETTINGS - Deployment singleton
// =============================================================================

const (
	DefaultInvoicePrefix = "INV"
	DefaultInvoiceFooter = "Thank you for your business"
)

type CompanySettings struct {
	CompanyName   string    `json:"company_name" validate:"max=200"`
	Email         string    `json:"email" validate:"omitempty,email"`
	Phone         string    `json:"phone" validate:"max=20"`
	Address       string    `json:"address"`
	InvoicePrefix string    `json:"invoice_prefix" validate:"required,max=20"`
	InvoiceFooter string    `json:"invoice_footer"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultSettings is the row created on first read.
func DefaultSettings() CompanySettings {
	return CompanySettings{
		InvoicePrefix: DefaultInvoicePrefix,
		InvoiceFooter: DefaultInvoiceFooter,
	}
}
