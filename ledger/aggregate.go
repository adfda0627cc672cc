/*
aggregate.go - Set-level financial reporting

PURPOSE:
  Sums the formula engine's outputs across many invoices for dashboards,
  per-project breakdowns, monthly series and overdue reports.

ADDITIVITY:
  Every aggregate here is computed per record with ComputeInvoiceFinancials
  and then summed. Stores narrow the set (InvoiceFilter) but never evaluate
  a financial formula themselves, so for any partition P of a set S:

    AggregateFinancials(S) == sum(AggregateFinancials(p) for p in P)

  to the cent, including the certified clamp and the release-conditional
  sign of retention in total_received.

SEE ALSO:
  - financials.go: The per-record formulas
  - service.go: Loads the rows and calls into this file
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATE FINANCIALS
// =============================================================================

// AggregateFinancials returns the sum of each invoice's financials.
func AggregateFinancials(invoices []Invoice) Financials {
	var total Financials
	for _, inv := range invoices {
		total = total.Add(ComputeInvoiceFinancials(inv))
	}
	return total
}

// AggregateRows is AggregateFinancials over query rows.
func AggregateRows(rows []InvoiceRow) Financials {
	var total Financials
	for _, r := range rows {
		total = total.Add(ComputeInvoiceFinancials(r.Invoice))
	}
	return total
}

// =============================================================================
// FLAGS - Derived list-view states, never stored
// =============================================================================

type Flags struct {
	Overdue           bool `json:"overdue"`
	TDSPending        bool `json:"tds_pending"`
	RetentionHeld     bool `json:"retention_held"`
	RetentionReleased bool `json:"retention_released"`
	RetentionOverdue  bool `json:"retention_overdue"`
	HasBalanceDue     bool `json:"has_balance_due"`
}

// ComputeFlags derives the list-view states of inv as of today.
func ComputeFlags(inv Invoice, fin Financials, today Date) Flags {
	held := fin.RetentionAmount.IsPositive() && !inv.RetentionReleased
	return Flags{
		Overdue:           !inv.IsPaid() && !inv.DueDate.IsZero() && inv.DueDate.Before(today),
		TDSPending:        inv.TDSAmount.IsPositive() && !inv.TDSVerified,
		RetentionHeld:     held,
		RetentionReleased: inv.RetentionReleased,
		RetentionOverdue:  held && !inv.RetentionDueDate.IsZero() && inv.RetentionDueDate.Before(today),
		HasBalanceDue:     fin.BalanceDue.IsPositive(),
	}
}

// InvoiceView is an invoice row with its derived figures, as list views and
// exports present it.
type InvoiceView struct {
	InvoiceRow
	Financials Financials `json:"financials"`
	Flags      Flags      `json:"flags"`
}

// NewInvoiceView computes the figures for one row.
func NewInvoiceView(row InvoiceRow, today Date) InvoiceView {
	fin := ComputeInvoiceFinancials(row.Invoice)
	return InvoiceView{InvoiceRow: row, Financials: fin, Flags: ComputeFlags(row.Invoice, fin, today)}
}

// =============================================================================
// DASHBOARD SUMMARY
// =============================================================================

type InvoiceCounts struct {
	Total            int `json:"total"`
	Paid             int `json:"paid"`
	Pending          int `json:"pending"`
	Overdue          int `json:"overdue"`
	RetentionOverdue int `json:"retention_overdue"`
	TDSPending       int `json:"tds_pending"`
}

// Summary is the dashboard's headline report.
type Summary struct {
	Totals            Financials      `json:"totals"`
	Paid              Financials      `json:"paid"`
	Unpaid            Financials      `json:"unpaid"`
	Counts            InvoiceCounts   `json:"counts"`
	TDSPending        Money           `json:"tds_pending_amount"`
	RetentionHeld     Money           `json:"retention_held_amount"`
	RetentionReleased Money           `json:"retention_released_amount"`
	ContractValue     Money           `json:"contract_value"`
	PaidPercent       decimal.Decimal `json:"paid_percent"`

	// GSTCollected and NetProfit cover paid invoices only. NetProfit is the
	// certified amount net of tax.
	GSTCollected Money `json:"gst_collected"`
	NetProfit    Money `json:"net_profit"`

	ClientCount  int `json:"client_count"`
	ProjectCount int `json:"project_count"`
}

// Summarize builds the dashboard summary. ContractValue is the sum of the
// given projects' contract amounts and is the base of PaidPercent.
// ClientCount is the number of distinct clients owning those projects.
func Summarize(rows []InvoiceRow, projects []Project, today Date) Summary {
	var s Summary
	for _, r := range rows {
		fin := ComputeInvoiceFinancials(r.Invoice)
		flags := ComputeFlags(r.Invoice, fin, today)

		s.Totals = s.Totals.Add(fin)
		s.Counts.Total++
		if r.IsPaid() {
			s.Paid = s.Paid.Add(fin)
			s.Counts.Paid++
		} else {
			s.Unpaid = s.Unpaid.Add(fin)
			s.Counts.Pending++
		}
		if flags.Overdue {
			s.Counts.Overdue++
		}
		if flags.RetentionOverdue {
			s.Counts.RetentionOverdue++
		}
		if flags.TDSPending {
			s.Counts.TDSPending++
			s.TDSPending = s.TDSPending.Add(r.TDSAmount)
		}
		if flags.RetentionHeld {
			s.RetentionHeld = s.RetentionHeld.Add(fin.RetentionAmount)
		}
		if flags.RetentionReleased {
			s.RetentionReleased = s.RetentionReleased.Add(fin.RetentionAmount)
		}
	}
	clients := make(map[ClientID]struct{})
	for _, p := range projects {
		s.ContractValue = s.ContractValue.Add(p.ContractAmount)
		if p.ClientID != "" {
			clients[p.ClientID] = struct{}{}
		}
	}
	s.ProjectCount = len(projects)
	s.ClientCount = len(clients)
	s.PaidPercent = percentOf(s.Paid.TotalReceived, s.ContractValue)
	s.GSTCollected = s.Paid.TaxAmount
	s.NetProfit = s.Paid.CertifiedAmount.Sub(s.Paid.TaxAmount)
	return s
}

func percentOf(part, whole Money) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Decimal().Mul(hundred).Div(whole.Decimal()).Round(MoneyScale)
}

// =============================================================================
// PROJECT BREAKDOWN
// =============================================================================

type ProjectBreakdown struct {
	ProjectID        ProjectID `json:"project_id"`
	ProjectName      string    `json:"project_name"`
	ClientName       string    `json:"client_name"`
	ContractAmount   Money     `json:"contract_amount"`
	InvoiceCount     int       `json:"invoice_count"`
	PaidCertified    Money     `json:"paid_certified"`
	PendingCertified Money     `json:"pending_certified"`
	BalanceDue       Money     `json:"balance_due"`
	LatestInvoiceNo  string    `json:"latest_invoice_number"`
}

// BreakdownByProject groups rows per project, in the order projects are given.
// Projects without invoices are included with zero totals.
func BreakdownByProject(projects []ProjectRow, rows []InvoiceRow) []ProjectBreakdown {
	byProject := make(map[ProjectID][]InvoiceRow, len(projects))
	for _, r := range rows {
		byProject[r.ProjectID] = append(byProject[r.ProjectID], r)
	}

	out := make([]ProjectBreakdown, 0, len(projects))
	for _, p := range projects {
		b := ProjectBreakdown{
			ProjectID:      p.ID,
			ProjectName:    p.Name,
			ClientName:     p.ClientName,
			ContractAmount: p.ContractAmount,
		}
		var latest *InvoiceRow
		for i := range byProject[p.ID] {
			r := &byProject[p.ID][i]
			fin := ComputeInvoiceFinancials(r.Invoice)
			b.InvoiceCount++
			if r.IsPaid() {
				b.PaidCertified = b.PaidCertified.Add(fin.CertifiedAmount)
			} else {
				b.PendingCertified = b.PendingCertified.Add(fin.CertifiedAmount)
			}
			b.BalanceDue = b.BalanceDue.Add(fin.BalanceDue)
			if latest == nil || laterInvoice(r.Invoice, latest.Invoice) {
				latest = r
			}
		}
		if latest != nil {
			b.LatestInvoiceNo = latest.Number
		}
		out = append(out, b)
	}
	return out
}

func laterInvoice(a, b Invoice) bool {
	if !a.InvoiceDate.Equal(b.InvoiceDate) {
		return a.InvoiceDate.After(b.InvoiceDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// =============================================================================
// MONTHLY SERIES
// =============================================================================

type MonthlyTotal struct {
	Month     string `json:"month"`
	Label     string `json:"label"`
	Count     int    `json:"count"`
	Certified Money  `json:"certified_amount"`
	Received  Money  `json:"total_received"`
}

// MonthlySeries buckets rows by invoice month, oldest month first.
func MonthlySeries(rows []InvoiceRow) []MonthlyTotal {
	buckets := make(map[string]*MonthlyTotal)
	for _, r := range rows {
		if r.InvoiceDate.IsZero() {
			continue
		}
		key := r.InvoiceDate.Time.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyTotal{Month: key, Label: r.InvoiceDate.MonthLabel()}
			buckets[key] = b
		}
		fin := ComputeInvoiceFinancials(r.Invoice)
		b.Count++
		b.Certified = b.Certified.Add(fin.CertifiedAmount)
		b.Received = b.Received.Add(fin.TotalReceived)
	}

	out := make([]MonthlyTotal, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// =============================================================================
// OVERDUE REPORT
// =============================================================================

type OverdueItem struct {
	InvoiceID   InvoiceID `json:"invoice_id"`
	Number      string    `json:"invoice_number"`
	ProjectName string    `json:"project_name"`
	ClientName  string    `json:"client_name"`
	DueDate     Date      `json:"due_date"`
	DaysOverdue int       `json:"days_overdue"`
	Amount      Money     `json:"amount"`
}

type OverdueReport struct {
	AsOf                 Date          `json:"as_of"`
	Overdue              []OverdueItem `json:"overdue"`
	RetentionOverdue     []OverdueItem `json:"retention_overdue"`
	OverdueBalance       Money         `json:"overdue_balance"`
	RetentionOutstanding Money         `json:"retention_outstanding"`
}

// BuildOverdueReport lists unpaid invoices past their due date and held
// retention past its retention due date, most overdue first.
func BuildOverdueReport(rows []InvoiceRow, today Date) OverdueReport {
	report := OverdueReport{AsOf: today, Overdue: []OverdueItem{}, RetentionOverdue: []OverdueItem{}}
	for _, r := range rows {
		fin := ComputeInvoiceFinancials(r.Invoice)
		flags := ComputeFlags(r.Invoice, fin, today)
		if flags.Overdue {
			report.Overdue = append(report.Overdue, overdueItem(r, r.DueDate, fin.BalanceDue, today))
			report.OverdueBalance = report.OverdueBalance.Add(fin.BalanceDue)
		}
		if flags.RetentionOverdue {
			outstanding := OutstandingRetention(r.Invoice)
			report.RetentionOverdue = append(report.RetentionOverdue, overdueItem(r, r.RetentionDueDate, outstanding, today))
			report.RetentionOutstanding = report.RetentionOutstanding.Add(outstanding)
		}
	}
	byDays := func(items []OverdueItem) func(i, j int) bool {
		return func(i, j int) bool { return items[i].DaysOverdue > items[j].DaysOverdue }
	}
	sort.SliceStable(report.Overdue, byDays(report.Overdue))
	sort.SliceStable(report.RetentionOverdue, byDays(report.RetentionOverdue))
	return report
}

func overdueItem(r InvoiceRow, due Date, amount Money, today Date) OverdueItem {
	return OverdueItem{
		InvoiceID:   r.ID,
		Number:      r.Number,
		ProjectName: r.ProjectName,
		ClientName:  r.ClientName,
		DueDate:     due,
		DaysOverdue: int(today.Time.Sub(due.Time).Hours() / 24),
		Amount:      amount,
	}
}
