package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DELIVERY - Outbound invoice documents
// =============================================================================

// InvoiceDocument is everything a renderer needs to produce an invoice.
// All figures come from ComputeInvoiceFinancials.
type InvoiceDocument struct {
	Invoice    Invoice         `json:"invoice"`
	Project    Project         `json:"project"`
	Client     Client          `json:"client"`
	Settings   CompanySettings `json:"settings"`
	Financials Financials      `json:"financials"`
	CGSTAmount Money           `json:"cgst_amount"`
	SGSTAmount Money           `json:"sgst_amount"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
}

// Deliverer sends an invoice document over one channel (email, log, ...).
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, doc InvoiceDocument) error
}

// InvoiceDocument assembles the document for an invoice.
func (s *Service) InvoiceDocument(ctx context.Context, id InvoiceID) (InvoiceDocument, error) {
	row, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceDocument{}, err
	}
	project, err := s.store.GetProject(ctx, row.ProjectID)
	if err != nil {
		return InvoiceDocument{}, err
	}
	client, err := s.store.GetClient(ctx, project.ClientID)
	if err != nil {
		return InvoiceDocument{}, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return InvoiceDocument{}, err
	}
	return InvoiceDocument{
		Invoice:    row.Invoice,
		Project:    project.Project,
		Client:     client,
		Settings:   settings,
		Financials: ComputeInvoiceFinancials(row.Invoice),
		CGSTAmount: CGSTAmount(row.Invoice),
		SGSTAmount: SGSTAmount(row.Invoice),
		GSTPercent: row.CGSTPercent.Add(row.SGSTPercent),
	}, nil
}
