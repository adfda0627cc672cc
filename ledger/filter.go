package ledger

import "strings"

// =============================================================================
// QUERY ROWS - Records joined with their owners' display names
// =============================================================================

// InvoiceRow is an invoice together with the names a listing needs.
type InvoiceRow struct {
	Invoice
	ProjectName string   `json:"project_name"`
	ClientID    ClientID `json:"client_id"`
	ClientName  string   `json:"client_name"`
}

// ProjectRow is a project together with its client's name.
type ProjectRow struct {
	Project
	ClientName string `json:"client_name"`
}

// =============================================================================
// FILTERS
// =============================================================================

// InvoiceFilter selects invoices. Zero-valued fields do not constrain.
type InvoiceFilter struct {
	ProjectID ProjectID
	ClientID  ClientID
	Status    InvoiceStatus
	// Range constrains the invoice date.
	Range DateRange
	// Search is a case-insensitive substring of the invoice number, project
	// name or client name.
	Search string
}

// Matches reports whether row satisfies every set criterion. Stores that
// cannot push a filter into their query language use this directly.
func (f InvoiceFilter) Matches(row InvoiceRow) bool {
	if f.ProjectID != "" && row.ProjectID != f.ProjectID {
		return false
	}
	if f.ClientID != "" && row.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && row.Status != f.Status {
		return false
	}
	if !f.Range.Contains(row.InvoiceDate) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		return containsFold(q, row.Number, row.ProjectName, row.ClientName)
	}
	return true
}

// ProjectFilter selects projects.
type ProjectFilter struct {
	ClientID ClientID
	Status   ProjectStatus
	Search   string
}

func (f ProjectFilter) Matches(row ProjectRow) bool {
	if f.ClientID != "" && row.ClientID != f.ClientID {
		return false
	}
	if f.Status != "" && row.Status != f.Status {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		return containsFold(q, row.Name, row.ClientName, row.ScopeOfWork)
	}
	return true
}

// ClientMatches is the client half of global search.
func ClientMatches(c Client, q string) bool {
	q = strings.TrimSpace(q)
	return q == "" || containsFold(q, c.Name, c.Email, c.Phone, c.Address)
}

// PaymentFilter selects payments of one invoice. Payments are returned
// newest first unless OldestFirst is set.
type PaymentFilter struct {
	InvoiceID   InvoiceID
	Range       DateRange
	OldestFirst bool
}

func (f PaymentFilter) Matches(p Payment) bool {
	if f.InvoiceID != "" && p.InvoiceID != f.InvoiceID {
		return false
	}
	return f.Range.Contains(p.Date)
}

func containsFold(q string, fields ...string) bool {
	q = strings.ToLower(q)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
