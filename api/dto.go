/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication where they differ from
  the ledger types. Clients and settings are decoded straight into their
  ledger types; projects, invoices and payments go through request types
  that supply the form defaults of the web UI.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers
  - *DTO: Everything else returned to clients

DEFAULTS:
  A new project assumes 18% GST. A new invoice assumes CGST 9%, SGST 9%
  and 5% retention. Omitted fields get the default; an explicit 0 is kept.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/entities.go: Client, Project, Invoice, CompanySettings
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// PROJECTS
// =============================================================================

// ProjectRequest is the body of project create and update.
type ProjectRequest struct {
	ClientID         ledger.ClientID      `json:"client_id"`
	Name             string               `json:"project_name"`
	WorkOrderNo      string               `json:"work_order_no"`
	ContractAmount   ledger.Money         `json:"contract_amount"`
	RetentionPercent decimal.Decimal      `json:"retention_percent"`
	GSTPercent       *decimal.Decimal     `json:"gst_percent"`
	StartDate        ledger.Date          `json:"start_date"`
	EndDate          ledger.Date          `json:"end_date"`
	ScopeOfWork      string               `json:"scope_of_work"`
	ProjectManager   string               `json:"project_manager"`
	Status           ledger.ProjectStatus `json:"status"`
}

func (r ProjectRequest) toProject(id ledger.ProjectID) ledger.Project {
	gst := ledger.DefaultProjectGSTPercent
	if r.GSTPercent != nil {
		gst = *r.GSTPercent
	}
	return ledger.Project{
		ID:               id,
		ClientID:         r.ClientID,
		Name:             r.Name,
		WorkOrderNo:      r.WorkOrderNo,
		ContractAmount:   r.ContractAmount,
		RetentionPercent: r.RetentionPercent,
		GSTPercent:       gst,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		ScopeOfWork:      r.ScopeOfWork,
		ProjectManager:   r.ProjectManager,
		Status:           r.Status,
	}
}

// =============================================================================
// INVOICES
// =============================================================================

// newInvoiceDefaults supplies the rates used when a create request omits them.
var newInvoiceDefaults = ledger.Invoice{
	CGSTPercent:      decimal.NewFromInt(9),
	SGSTPercent:      decimal.NewFromInt(9),
	RetentionType:    ledger.RetentionPercent,
	RetentionPercent: decimal.NewFromInt(5),
}

// InvoiceRequest is the body of invoice create and update. Derived figures
// are never accepted from clients.
type InvoiceRequest struct {
	ProjectID ledger.ProjectID `json:"project_id"`
	Number    string           `json:"invoice_number"`
	RABillNo  string           `json:"ra_bill_no"`

	ContractAmount ledger.Money `json:"contract_amount"`
	InvoiceDate    ledger.Date  `json:"invoice_date"`
	DueDate        ledger.Date  `json:"due_date"`

	CGSTPercent *decimal.Decimal `json:"cgst_percent"`
	SGSTPercent *decimal.Decimal `json:"sgst_percent"`

	RetentionType         ledger.RetentionType `json:"retention_type"`
	RetentionPercent      *decimal.Decimal     `json:"retention_percent"`
	RetentionFixedAmount  ledger.Money         `json:"retention_fixed_amount"`
	RetentionDueDate      ledger.Date          `json:"retention_due_date"`
	RetentionReleased     bool                 `json:"retention_released"`
	RetentionReleasedDate ledger.Date          `json:"retention_released_date"`
	RetentionPaidAmount   ledger.Money         `json:"retention_paid_amount"`

	TDSAmount         ledger.Money         `json:"tds_amount"`
	OtherDeductions   ledger.Money         `json:"other_deductions"`
	PaidAmount        ledger.Money         `json:"paid_amount"`
	LastPaymentAmount ledger.Money         `json:"last_payment_amount"`
	PaymentMode       ledger.PaymentMode   `json:"payment_mode"`
	PaymentDate       ledger.Date          `json:"payment_date"`
	TDSVerified       bool                 `json:"tds_verified"`
	TDSVerifiedDate   ledger.Date          `json:"tds_verified_date"`
	Status            ledger.InvoiceStatus `json:"status"`

	// Version is the version the client last read; 0 skips the check.
	Version int64 `json:"version"`
}

func pick(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}

// toInvoice builds the invoice, taking omitted rates and retention type from
// defaults.
func (r InvoiceRequest) toInvoice(id ledger.InvoiceID, defaults ledger.Invoice) ledger.Invoice {
	retentionType := r.RetentionType
	if retentionType == "" {
		retentionType = defaults.RetentionType
	}
	return ledger.Invoice{
		ID:                    id,
		ProjectID:             r.ProjectID,
		Number:                r.Number,
		RABillNo:              r.RABillNo,
		ContractAmount:        r.ContractAmount,
		InvoiceDate:           r.InvoiceDate,
		DueDate:               r.DueDate,
		CGSTPercent:           pick(r.CGSTPercent, defaults.CGSTPercent),
		SGSTPercent:           pick(r.SGSTPercent, defaults.SGSTPercent),
		RetentionType:         retentionType,
		RetentionPercent:      pick(r.RetentionPercent, defaults.RetentionPercent),
		RetentionFixedAmount:  r.RetentionFixedAmount,
		RetentionDueDate:      r.RetentionDueDate,
		RetentionReleased:     r.RetentionReleased,
		RetentionReleasedDate: r.RetentionReleasedDate,
		RetentionPaidAmount:   r.RetentionPaidAmount,
		TDSAmount:             r.TDSAmount,
		OtherDeductions:       r.OtherDeductions,
		PaidAmount:            r.PaidAmount,
		LastPaymentAmount:     r.LastPaymentAmount,
		PaymentMode:           r.PaymentMode,
		PaymentDate:           r.PaymentDate,
		TDSVerified:           r.TDSVerified,
		TDSVerifiedDate:       r.TDSVerifiedDate,
		Status:                r.Status,
		Version:               r.Version,
	}
}

// =============================================================================
// WORKFLOW
// =============================================================================

// PaymentRequest is the body of POST /api/invoices/{id}/payments.
type PaymentRequest struct {
	Amount             ledger.Money       `json:"amount"`
	PaymentDate        ledger.Date        `json:"payment_date"`
	PaymentMode        ledger.PaymentMode `json:"payment_mode"`
	Notes              string             `json:"notes"`
	AppliesToRetention bool               `json:"applies_to_retention"`
}

// StatusChangeResponse reports the outcome of mark-paid, verify-tds and send.
type StatusChangeResponse struct {
	Changed bool               `json:"changed"`
	Message string             `json:"message"`
	Invoice ledger.InvoiceView `json:"invoice"`
}

// InvoiceNumberDTO is the suggested next invoice number.
type InvoiceNumberDTO struct {
	InvoiceNumber string `json:"invoice_number"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
