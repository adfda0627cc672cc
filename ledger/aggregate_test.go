package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
)

// mixedInvoices covers every formula branch: held and released retention,
// clamped certified, fixed retention, TDS and odd-cent rounding.
func mixedInvoices() []ledger.Invoice {
	held := standardInvoice()

	released := standardInvoice()
	released.Number = "INV-0002"
	released.RetentionReleased = true
	released.RetentionPaidAmount = m("5000.00")
	released.PaidAmount = m("118000.00")
	released.Status = ledger.StatusPaid

	clamped := standardInvoice()
	clamped.Number = "INV-0003"
	clamped.OtherDeductions = m("500000.00")

	fixed := standardInvoice()
	fixed.Number = "INV-0004"
	fixed.RetentionType = ledger.RetentionAmount
	fixed.RetentionFixedAmount = m("1234.56")
	fixed.TDSAmount = m("1000.00")
	fixed.PaidAmount = m("20000.00")

	odd := standardInvoice()
	odd.Number = "INV-0005"
	odd.ContractAmount = m("333.33")
	odd.RetentionPercent = pct("2.5")

	return []ledger.Invoice{held, released, clamped, fixed, odd}
}

func TestAggregateFinancials_EqualsSumOfRecords(t *testing.T) {
	invoices := mixedInvoices()

	var want ledger.Financials
	for _, inv := range invoices {
		want = want.Add(ledger.ComputeInvoiceFinancials(inv))
	}

	got := ledger.AggregateFinancials(invoices)
	assert.True(t, want.Equal(got), "want %+v, got %+v", want, got)
}

func TestAggregateFinancials_AdditiveOverPartitions(t *testing.T) {
	invoices := mixedInvoices()
	whole := ledger.AggregateFinancials(invoices)

	// Every split point gives a two-way partition
	for split := 0; split <= len(invoices); split++ {
		left := ledger.AggregateFinancials(invoices[:split])
		right := ledger.AggregateFinancials(invoices[split:])
		assert.True(t, whole.Equal(left.Add(right)), "split at %d", split)
	}

	// And a partition by status
	var paid, pending []ledger.Invoice
	for _, inv := range invoices {
		if inv.IsPaid() {
			paid = append(paid, inv)
		} else {
			pending = append(pending, inv)
		}
	}
	byStatus := ledger.AggregateFinancials(paid).Add(ledger.AggregateFinancials(pending))
	assert.True(t, whole.Equal(byStatus))
}

func TestAggregateFinancials_KeepsClampAndReleaseSign(t *testing.T) {
	invoices := mixedInvoices()

	got := ledger.AggregateFinancials(invoices[1:3]) // released + clamped

	// released: certified 118000, received 123000
	// clamped:  certified 0 (clamped), received -5000
	assert.Equal(t, "118000.00", got.CertifiedAmount.String())
	assert.Equal(t, "118000.00", got.TotalReceived.String())
}

func TestAggregateFinancials_Empty(t *testing.T) {
	got := ledger.AggregateFinancials(nil)
	assert.True(t, got.Equal(ledger.Financials{}))
}

// =============================================================================
// FLAGS
// =============================================================================

func TestComputeFlags(t *testing.T) {
	today := ledger.MustDate("2025-06-15")

	inv := standardInvoice()
	inv.DueDate = ledger.MustDate("2025-06-01")
	inv.RetentionDueDate = ledger.MustDate("2025-06-10")
	inv.TDSAmount = m("100.00")
	flags := ledger.ComputeFlags(inv, ledger.ComputeInvoiceFinancials(inv), today)

	assert.True(t, flags.Overdue)
	assert.True(t, flags.TDSPending)
	assert.True(t, flags.RetentionHeld)
	assert.True(t, flags.RetentionOverdue)
	assert.False(t, flags.RetentionReleased)
	assert.True(t, flags.HasBalanceDue)

	// Paid invoices are never overdue; verified TDS is not pending
	inv.Status = ledger.StatusPaid
	inv.TDSVerified = true
	flags = ledger.ComputeFlags(inv, ledger.ComputeInvoiceFinancials(inv), today)
	assert.False(t, flags.Overdue)
	assert.False(t, flags.TDSPending)

	// Due today is not yet overdue
	inv.Status = ledger.StatusPending
	inv.DueDate = today
	flags = ledger.ComputeFlags(inv, ledger.ComputeInvoiceFinancials(inv), today)
	assert.False(t, flags.Overdue)
}

// =============================================================================
// REPORTS
// =============================================================================

func rowsFor(invoices []ledger.Invoice, projectID ledger.ProjectID) []ledger.InvoiceRow {
	rows := make([]ledger.InvoiceRow, 0, len(invoices))
	for _, inv := range invoices {
		inv.ProjectID = projectID
		rows = append(rows, ledger.InvoiceRow{Invoice: inv, ProjectName: "Tower A", ClientID: "c1", ClientName: "Acme"})
	}
	return rows
}

func TestSummarize(t *testing.T) {
	today := ledger.MustDate("2025-06-15")
	invoices := mixedInvoices()
	invoices[0].DueDate = ledger.MustDate("2025-05-01") // overdue
	invoices[3].TDSVerified = false                     // 1000 TDS pending

	rows := rowsFor(invoices, "p1")
	projects := []ledger.Project{
		{ID: "p1", ClientID: "c1", ContractAmount: m("236000.00")},
		{ID: "p2", ClientID: "c1"},
	}

	s := ledger.Summarize(rows, projects, today)

	assert.Equal(t, 5, s.Counts.Total)
	assert.Equal(t, 1, s.Counts.Paid)
	assert.Equal(t, 4, s.Counts.Pending)
	assert.Equal(t, 1, s.Counts.Overdue)
	assert.Equal(t, 1, s.Counts.TDSPending)
	assert.Equal(t, "1000.00", s.TDSPending.String())
	assert.Equal(t, "5000.00", s.RetentionReleased.String())

	assert.True(t, s.Totals.Equal(s.Paid.Add(s.Unpaid)))
	assert.True(t, s.Totals.Equal(ledger.AggregateFinancials(invoices)))

	// paid received 123000 of 236000 contract
	assert.Equal(t, "52.12", s.PaidPercent.StringFixed(2))

	// only INV-0002 is paid: 18000 tax on 118000 certified
	assert.Equal(t, "18000.00", s.GSTCollected.String())
	assert.Equal(t, "100000.00", s.NetProfit.String())
	assert.Equal(t, 2, s.ProjectCount)
	assert.Equal(t, 1, s.ClientCount)
}

func TestSummarize_NoContractValue(t *testing.T) {
	s := ledger.Summarize(nil, nil, ledger.MustDate("2025-06-15"))
	assert.True(t, s.PaidPercent.IsZero())
	assert.True(t, s.GSTCollected.IsZero())
	assert.True(t, s.NetProfit.IsZero())
	assert.Zero(t, s.ClientCount)
}

func TestBreakdownByProject(t *testing.T) {
	first := standardInvoice()
	first.InvoiceDate = ledger.MustDate("2025-01-10")

	second := standardInvoice()
	second.Number = "INV-0009"
	second.InvoiceDate = ledger.MustDate("2025-02-10")
	second.Status = ledger.StatusPaid

	projects := []ledger.ProjectRow{
		{Project: ledger.Project{ID: "p1", Name: "Tower A"}, ClientName: "Acme"},
		{Project: ledger.Project{ID: "p2", Name: "Empty"}, ClientName: "Acme"},
	}
	rows := rowsFor([]ledger.Invoice{first, second}, "p1")

	out := ledger.BreakdownByProject(projects, rows)
	require.Len(t, out, 2)

	assert.Equal(t, 2, out[0].InvoiceCount)
	assert.Equal(t, "113000.00", out[0].PaidCertified.String())
	assert.Equal(t, "113000.00", out[0].PendingCertified.String())
	assert.Equal(t, "236000.00", out[0].BalanceDue.String())
	assert.Equal(t, "INV-0009", out[0].LatestInvoiceNo)

	assert.Equal(t, 0, out[1].InvoiceCount)
	assert.Equal(t, "", out[1].LatestInvoiceNo)
}

func TestMonthlySeries(t *testing.T) {
	jan := standardInvoice()
	jan.InvoiceDate = ledger.NewDate(2025, time.January, 31)
	jan2 := standardInvoice()
	jan2.InvoiceDate = ledger.NewDate(2025, time.January, 2)
	mar := standardInvoice()
	mar.InvoiceDate = ledger.NewDate(2025, time.March, 5)

	series := ledger.MonthlySeries(rowsFor([]ledger.Invoice{mar, jan, jan2}, "p1"))
	require.Len(t, series, 2)

	assert.Equal(t, "2025-01", series[0].Month)
	assert.Equal(t, "Jan 2025", series[0].Label)
	assert.Equal(t, 2, series[0].Count)
	assert.Equal(t, "226000.00", series[0].Certified.String())
	assert.Equal(t, "Mar 2025", series[1].Label)
}

func TestBuildOverdueReport(t *testing.T) {
	today := ledger.MustDate("2025-06-15")

	late := standardInvoice()
	late.DueDate = ledger.MustDate("2025-06-05")

	later := standardInvoice()
	later.Number = "INV-0002"
	later.DueDate = ledger.MustDate("2025-05-16")
	later.RetentionDueDate = ledger.MustDate("2025-06-14")
	later.RetentionPaidAmount = m("1000.00")

	onTime := standardInvoice()
	onTime.Number = "INV-0003"
	onTime.DueDate = ledger.MustDate("2025-07-01")

	report := ledger.BuildOverdueReport(rowsFor([]ledger.Invoice{late, later, onTime}, "p1"), today)

	require.Len(t, report.Overdue, 2)
	assert.Equal(t, "INV-0002", report.Overdue[0].Number, "most overdue first")
	assert.Equal(t, 30, report.Overdue[0].DaysOverdue)
	assert.Equal(t, 10, report.Overdue[1].DaysOverdue)
	assert.Equal(t, "236000.00", report.OverdueBalance.String())

	require.Len(t, report.RetentionOverdue, 1)
	assert.Equal(t, "4000.00", report.RetentionOutstanding.String())
}
