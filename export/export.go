/*
export.go - Invoice exports and printable reports

PURPOSE:
  Turns ledger views into files an accountant can open: a CSV of invoices
  with their derived figures, and plain-text dashboard and overdue reports
  with amounts formatted the Indian way (lakh/crore grouping, rupee sign).

  Every figure comes from the ledger's formula engine. Nothing here
  computes money.

SEE ALSO:
  - ledger/aggregate.go: InvoiceView, Summary, OverdueReport
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// CSV
// =============================================================================

// InvoiceColumns is the CSV header row.
var InvoiceColumns = []string{
	"Invoice No",
	"Client",
	"Project",
	"Invoice Date",
	"Contract Amount",
	"Tax",
	"Retention",
	"Certified Amount",
	"Total Received",
	"Balance Due",
	"Status",
}

// WriteInvoicesCSV writes one row per invoice. Amounts are plain decimals
// with two places so spreadsheets parse them as numbers.
func WriteInvoicesCSV(w io.Writer, views []ledger.InvoiceView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(InvoiceColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, v := range views {
		record := []string{
			v.Number,
			v.ClientName,
			v.ProjectName,
			v.InvoiceDate.String(),
			v.ContractAmount.String(),
			v.Financials.TaxAmount.String(),
			v.Financials.RetentionAmount.String(),
			v.Financials.CertifiedAmount.String(),
			v.Financials.TotalReceived.String(),
			v.Financials.BalanceDue.String(),
			string(v.Status),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", v.Number, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// INR FORMATTING
// =============================================================================

var indianEnglish = language.MustParse("en-IN")

// FormatINR renders m with the rupee sign and Indian digit grouping,
// e.g. ₹1,18,000.00. Negative amounts get a leading minus. The digits come
// from the exact decimal, so amounts of any size keep their paise.
func FormatINR(m ledger.Money) string {
	q := m.Quantize().Decimal()
	sign := ""
	if q.IsNegative() {
		sign = "-"
		q = q.Neg()
	}
	whole, paise, _ := strings.Cut(q.StringFixed(ledger.MoneyScale), ".")
	return sign + "₹" + groupIndian(whole) + "." + paise
}

// groupIndian inserts separators after the last three digits and then after
// every two: 12345678 becomes 1,23,45,678.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return strings.Join(append(groups, tail), ",")
}

// =============================================================================
// TEXT REPORTS
// =============================================================================

// WriteDashboard prints the headline summary and the per-project breakdown.
func WriteDashboard(w io.Writer, d ledger.Dashboard) error {
	p := message.NewPrinter(indianEnglish)
	s := d.Summary
	inr := FormatINR

	lines := []string{
		"Billing summary",
		p.Sprintf("  Clients / projects:  %d / %d", s.ClientCount, s.ProjectCount),
		p.Sprintf("  Invoices:            %d (%d paid, %d pending, %d overdue)",
			s.Counts.Total, s.Counts.Paid, s.Counts.Pending, s.Counts.Overdue),
		"  Contract value:      " + inr(s.ContractValue),
		"  Certified:           " + inr(s.Totals.CertifiedAmount),
		"  Received:            " + inr(s.Totals.TotalReceived),
		"  Balance due:         " + inr(s.Totals.BalanceDue),
		"  TDS pending:         " + inr(s.TDSPending),
		"  Retention held:      " + inr(s.RetentionHeld),
		"  Retention released:  " + inr(s.RetentionReleased),
		"  GST collected:       " + inr(s.GSTCollected),
		"  Net profit:          " + inr(s.NetProfit),
		"  Paid:                " + s.PaidPercent.StringFixed(2) + "%",
	}
	if len(d.Projects) > 0 {
		lines = append(lines, "", "Projects")
		for _, pb := range d.Projects {
			lines = append(lines, p.Sprintf("  %-30s %3d invoices  certified %s  balance %s",
				pb.ProjectName, pb.InvoiceCount,
				inr(pb.PaidCertified.Add(pb.PendingCertified)), inr(pb.BalanceDue)))
		}
	}
	return writeLines(w, lines)
}

// WriteOverdue prints overdue invoices and overdue retention.
func WriteOverdue(w io.Writer, r ledger.OverdueReport) error {
	lines := []string{fmt.Sprintf("Overdue as of %s", r.AsOf)}

	section := func(title string, items []ledger.OverdueItem, total ledger.Money) {
		lines = append(lines, "", fmt.Sprintf("%s (%d): %s", title, len(items), FormatINR(total)))
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("  %-12s %-25s due %s  %3d days  %s",
				it.Number, it.ClientName, it.DueDate, it.DaysOverdue, FormatINR(it.Amount)))
		}
	}
	section("Invoices", r.Overdue, r.OverdueBalance)
	section("Retention", r.RetentionOverdue, r.RetentionOutstanding)
	return writeLines(w, lines)
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}
