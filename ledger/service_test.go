package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/ledger/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var today = ledger.MustDate("2025-06-15")

type fixture struct {
	t       *testing.T
	ctx     context.Context
	mem     *store.Memory
	svc     *ledger.Service
	client  ledger.Client
	project ledger.ProjectRow
	seq     int
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return newFixtureWithStore(t, mem, mem, opts...)
}

func newFixtureWithStore(t *testing.T, mem *store.Memory, st ledger.TxStore, opts ...ledger.Option) *fixture {
	t.Helper()
	opts = append([]ledger.Option{
		ledger.WithClock(ledger.FixedClock{Day: today}),
		ledger.WithIDGenerator(sequentialIDs()),
	}, opts...)

	f := &fixture{t: t, ctx: context.Background(), mem: mem, svc: ledger.NewService(st, opts...)}

	var err error
	f.client, err = f.svc.CreateClient(f.ctx, ledger.Client{
		Name:  "Acme Infra",
		Phone: "9876543210",
		Email: "accounts@acme.in",
	})
	require.NoError(t, err)

	f.project, err = f.svc.CreateProject(f.ctx, ledger.Project{
		ClientID:       f.client.ID,
		Name:           "Tower A",
		ContractAmount: m("500000.00"),
	})
	require.NoError(t, err)
	return f
}

// invoice creates a standard invoice, optionally adjusted by mutate.
func (f *fixture) invoice(mutate func(*ledger.Invoice)) ledger.InvoiceView {
	f.t.Helper()
	f.seq++
	inv := standardInvoice()
	inv.ProjectID = f.project.ID
	inv.Number = fmt.Sprintf("INV-%04d", f.seq)
	if mutate != nil {
		mutate(&inv)
	}
	view, err := f.svc.CreateInvoice(f.ctx, inv)
	require.NoError(f.t, err)
	return view
}

func (f *fixture) pay(id ledger.InvoiceID, amount string, retention bool) (ledger.PaymentResult, error) {
	return f.svc.RecordPayment(f.ctx, ledger.PaymentRequest{
		InvoiceID:          id,
		Amount:             m(amount),
		AppliesToRetention: retention,
	})
}

func (f *fixture) reload(id ledger.InvoiceID) ledger.InvoiceView {
	f.t.Helper()
	view, err := f.svc.GetInvoice(f.ctx, id)
	require.NoError(f.t, err)
	return view
}

// flakyStore fails every invoice update made inside a transaction.
type flakyStore struct {
	*store.Memory
}

func (s flakyStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.Memory.WithTx(ctx, func(tx ledger.Store) error {
		return fn(failingUpdates{tx})
	})
}

type failingUpdates struct {
	ledger.Store
}

func (failingUpdates) UpdateInvoice(context.Context, ledger.Invoice) (int64, error) {
	return 0, errors.New("disk full")
}

// recordingDeliverer captures documents, or fails with err.
type recordingDeliverer struct {
	err  error
	docs []ledger.InvoiceDocument
}

func (d *recordingDeliverer) Channel() string { return "test" }

func (d *recordingDeliverer) Deliver(_ context.Context, doc ledger.InvoiceDocument) error {
	if d.err != nil {
		return d.err
	}
	d.docs = append(d.docs, doc)
	return nil
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

func TestRecordPayment_RejectsAboveCeiling(t *testing.T) {
	// GIVEN: A fresh invoice whose ceiling is 1,18,000
	f := newFixture(t)
	inv := f.invoice(nil)

	// WHEN: Paying 1,50,000
	_, err := f.pay(inv.ID, "150000", false)

	// THEN: The payment is refused and nothing changes
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount))
	var perr *ledger.InvalidPaymentAmountError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "118000.00", perr.Ceiling.String())

	after := f.reload(inv.ID)
	assert.True(t, after.PaidAmount.IsZero())
	assert.Equal(t, int64(1), after.Version)

	payments, err := f.svc.ListPayments(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRecordPayment_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	for _, amount := range []string{"0", "-10", "0.004"} {
		_, err := f.pay(inv.ID, amount, false)
		assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount), amount)
	}
}

func TestRecordPayment_Valid(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	res, err := f.pay(inv.ID, "50000", false)
	require.NoError(t, err)

	assert.Equal(t, "50000.00", res.Invoice.PaidAmount.String())
	assert.Equal(t, "50000.00", res.Invoice.LastPaymentAmount.String())
	assert.Equal(t, today, res.Invoice.PaymentDate, "date defaults to today")
	assert.Equal(t, ledger.ModeBank, res.Payment.Mode)
	assert.Equal(t, "45000.00", res.Financials.TotalReceived.String())
	assert.Equal(t, "68000.00", res.Financials.BalanceDue.String())
	assert.Equal(t, int64(2), res.Invoice.Version)

	// The stored invoice matches the returned one
	after := f.reload(inv.ID)
	assert.True(t, res.Financials.Equal(after.Financials))
	assert.Equal(t, int64(2), after.Version)
}

func TestRecordPayment_ExactCeilingThenNothingMore(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	_, err := f.pay(inv.ID, "118000.00", false)
	require.NoError(t, err)

	_, err = f.pay(inv.ID, "0.01", false)
	assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount))
}

func TestRecordPayment_RetentionInTwoParts(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	// GIVEN: 2,000 of the 5,000 retention paid
	res, err := f.svc.RecordPayment(f.ctx, ledger.PaymentRequest{
		InvoiceID:          inv.ID,
		Amount:             m("2000"),
		Date:               ledger.MustDate("2025-06-01"),
		AppliesToRetention: true,
	})
	require.NoError(t, err)
	assert.False(t, res.RetentionReleased)
	assert.False(t, res.Invoice.RetentionReleased)
	assert.Equal(t, "2000.00", res.Invoice.RetentionPaidAmount.String())

	// WHEN: The remaining 3,000 is paid
	res, err = f.svc.RecordPayment(f.ctx, ledger.PaymentRequest{
		InvoiceID:          inv.ID,
		Amount:             m("3000"),
		Date:               ledger.MustDate("2025-06-10"),
		Mode:               ledger.ModeCheque,
		AppliesToRetention: true,
	})
	require.NoError(t, err)

	// THEN: Retention is released on the payment date
	assert.True(t, res.RetentionReleased)
	assert.True(t, res.Invoice.RetentionReleased)
	assert.Equal(t, "2025-06-10", res.Invoice.RetentionReleasedDate.String())
	assert.Equal(t, "5000.00", res.Invoice.PaidAmount.String())
	assert.Equal(t, "118000.00", res.Financials.CertifiedAmount.String())
	assert.Equal(t, "10000.00", res.Financials.TotalReceived.String())
	assert.Equal(t, "108000.00", res.Financials.BalanceDue.String())

	// Nothing is left to pay against retention
	_, err = f.pay(inv.ID, "0.01", true)
	var perr *ledger.InvalidPaymentAmountError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Retention)
	assert.True(t, perr.Ceiling.IsZero())
}

func TestRecordPayment_RetentionAboveOutstanding(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	_, err := f.pay(inv.ID, "5000.01", true)
	assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount))
}

func TestRecordPayment_CeilingModes(t *testing.T) {
	withTDS := func(inv *ledger.Invoice) { inv.TDSAmount = m("2000") }

	// Excluding TDS: 113000 - (0 - 2000 - 5000) = 120000
	f := newFixture(t)
	inv := f.invoice(withTDS)
	_, err := f.pay(inv.ID, "119000", false)
	assert.NoError(t, err)

	// Net of TDS: balance_due = 118000
	f = newFixture(t, ledger.WithCeilingMode(ledger.CeilingNetOfTDS))
	inv = f.invoice(withTDS)
	_, err = f.pay(inv.ID, "119000", false)
	assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount))
	_, err = f.pay(inv.ID, "118000", false)
	assert.NoError(t, err)
}

func TestRecordPayment_UnknownInvoice(t *testing.T) {
	f := newFixture(t)

	_, err := f.pay("missing", "10", false)

	assert.True(t, ledger.IsNotFound(err))
}

func TestRecordPayment_RollsBackOnFailedUpdate(t *testing.T) {
	// GIVEN: A store whose transactional invoice update fails
	mem := store.NewMemory()
	f := newFixtureWithStore(t, mem, flakyStore{mem})
	inv := f.invoice(nil)

	// WHEN: Recording a payment
	_, err := f.pay(inv.ID, "1000", false)

	// THEN: The appended payment is rolled back with the invoice
	require.Error(t, err)
	payments, err := mem.ListPayments(f.ctx, ledger.PaymentFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.True(t, f.reload(inv.ID).PaidAmount.IsZero())
}

func TestRecordPayment_ConcurrentPaymentsRespectCeiling(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	// Each payment alone fits the ceiling; both together do not
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pay(inv.ID, "100000", false)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ledger.ErrInvalidPaymentAmount) || errors.Is(err, ledger.ErrConcurrentModification))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, "100000.00", f.reload(inv.ID).PaidAmount.String())
}

func TestRecordPayment_LogsRejection(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, ledger.WithLogger(zap.New(core)))
	inv := f.invoice(nil)

	_, err := f.pay(inv.ID, "999999", false)
	require.Error(t, err)

	rejected := logs.FilterMessage("payment rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, string(inv.ID), rejected[0].ContextMap()["invoice_id"])
}

// =============================================================================
// OPTIMISTIC LOCKING
// =============================================================================

func TestUpdateInvoice_StaleVersion(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)
	stale := inv.Invoice

	_, err := f.pay(inv.ID, "100", false)
	require.NoError(t, err)

	stale.RABillNo = "RA-2"
	_, err = f.svc.UpdateInvoice(f.ctx, stale)

	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))
	assert.True(t, ledger.IsRetryable(err))
}

func TestUpdateInvoice_ZeroVersionMeansCurrent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	edit := inv.Invoice
	edit.Version = 0
	edit.RABillNo = "RA-7"

	view, err := f.svc.UpdateInvoice(f.ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Version)
	assert.Equal(t, "RA-7", view.RABillNo)
}

func TestUpdateInvoice_KeepsWorkflowState(t *testing.T) {
	// GIVEN a fully paid invoice whose retention was released and settled
	f := newFixture(t)
	inv := f.invoice(nil)
	_, err := f.pay(inv.ID, "118000", false)
	require.NoError(t, err)
	_, err = f.pay(inv.ID, "5000", true)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(f.ctx, inv.ID)
	require.NoError(t, err)
	settled := f.reload(inv.ID)

	// WHEN an edit arrives carrying none of the workflow fields
	edit := settled.Invoice
	edit.Version = 0
	edit.RABillNo = "RA-9"
	edit.Status = ""
	edit.RetentionReleased = false
	edit.RetentionReleasedDate = ledger.Date{}
	edit.RetentionPaidAmount = ledger.Money{}
	edit.LastPaymentAmount = ledger.Money{}
	view, err := f.svc.UpdateInvoice(f.ctx, edit)

	// THEN the settlement survives and only the edited field changes
	require.NoError(t, err)
	assert.Equal(t, "RA-9", view.RABillNo)
	assert.Equal(t, ledger.StatusPaid, view.Status)
	assert.True(t, view.RetentionReleased)
	assert.Equal(t, settled.RetentionReleasedDate, view.RetentionReleasedDate)
	assert.Equal(t, "5000.00", view.RetentionPaidAmount.String())
	assert.Equal(t, settled.LastPaymentAmount.String(), view.LastPaymentAmount.String())
	assert.Equal(t, settled.Financials.BalanceDue.String(), view.Financials.BalanceDue.String())
}

// =============================================================================
// MARK PAID / VERIFY TDS
// =============================================================================

func TestMarkPaid_Idempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	already, err := f.svc.MarkPaid(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, ledger.StatusPaid, f.reload(inv.ID).Status)

	already, err = f.svc.MarkPaid(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, int64(2), f.reload(inv.ID).Version, "second call writes nothing")
}

func TestVerifyTDS(t *testing.T) {
	f := newFixture(t)

	noTDS := f.invoice(nil)
	changed, err := f.svc.VerifyTDS(f.ctx, noTDS.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	withTDS := f.invoice(func(inv *ledger.Invoice) { inv.TDSAmount = m("2000") })
	changed, err = f.svc.VerifyTDS(f.ctx, withTDS.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	after := f.reload(withTDS.ID)
	assert.True(t, after.TDSVerified)
	assert.Equal(t, today, after.TDSVerifiedDate)
	assert.Equal(t, "2000.00", after.TDSAmount.String())
	assert.False(t, after.Flags.TDSPending)

	changed, err = f.svc.VerifyTDS(f.ctx, withTDS.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

// =============================================================================
// PAYMENT HISTORY
// =============================================================================

func TestPaymentHistory_SynthesizesInitialPayment(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(func(inv *ledger.Invoice) {
		inv.PaidAmount = m("10000")
		inv.PaymentDate = ledger.MustDate("2025-02-01")
		inv.PaymentMode = ledger.ModeCheque
	})

	h, err := f.svc.PaymentHistory(f.ctx, inv.ID, ledger.DateRange{})
	require.NoError(t, err)

	require.Len(t, h.Entries, 1)
	assert.Equal(t, ledger.InitialPaymentNote, h.Entries[0].Notes)
	assert.Equal(t, "2025-02-01", h.Entries[0].Date.String())
	assert.Equal(t, "Cheque", h.Entries[0].ModeLabel)
	assert.Equal(t, "10000.00", h.TotalAmountPaid.String())
	assert.Equal(t, "108000.00", h.BalanceRemaining.String())

	// A date window never synthesizes
	h, err = f.svc.PaymentHistory(f.ctx, inv.ID, ledger.DateRange{From: ledger.MustDate("2025-01-01")})
	require.NoError(t, err)
	assert.Empty(t, h.Entries)
	assert.True(t, h.TotalAmountPaid.IsZero())
}

func TestPaymentHistory_OrderedWithRunningTotal(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	for _, p := range []struct{ date, amount string }{
		{"2025-03-10", "20000"},
		{"2025-02-05", "10000"},
		{"2025-04-01", "5000"},
	} {
		_, err := f.svc.RecordPayment(f.ctx, ledger.PaymentRequest{
			InvoiceID: inv.ID,
			Amount:    m(p.amount),
			Date:      ledger.MustDate(p.date),
		})
		require.NoError(t, err)
	}

	h, err := f.svc.PaymentHistory(f.ctx, inv.ID, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, h.Entries, 3)
	assert.Equal(t, "2025-02-05", h.Entries[0].Date.String())
	assert.Equal(t, "10000.00", h.Entries[0].RunningTotal.String())
	assert.Equal(t, "30000.00", h.Entries[1].RunningTotal.String())
	assert.Equal(t, "35000.00", h.Entries[2].RunningTotal.String())
	assert.Equal(t, 3, h.TotalPayments)

	// Windowed: running total restarts inside the window
	window := ledger.DateRange{From: ledger.MustDate("2025-03-01"), To: ledger.MustDate("2025-04-30")}
	h, err = f.svc.PaymentHistory(f.ctx, inv.ID, window)
	require.NoError(t, err)
	require.Len(t, h.Entries, 2)
	assert.Equal(t, "20000.00", h.Entries[0].RunningTotal.String())
	assert.Equal(t, "25000.00", h.TotalAmountPaid.String())

	// Balance reflects the whole invoice: 113000 - (35000 - 5000)
	assert.Equal(t, "83000.00", h.BalanceRemaining.String())

	// ListPayments is newest first
	payments, err := f.svc.ListPayments(f.ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, "2025-04-01", payments[0].Date.String())
}

func TestPaymentHistory_BalanceNeverNegative(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)

	_, err := f.pay(inv.ID, "118000", false)
	require.NoError(t, err)
	_, err = f.pay(inv.ID, "5000", true)
	require.NoError(t, err)

	// paid 123000 plus released retention against a 118000 certified amount
	assert.Equal(t, "-10000.00", f.reload(inv.ID).Financials.BalanceDue.String())

	h, err := f.svc.PaymentHistory(f.ctx, inv.ID, ledger.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "0.00", h.BalanceRemaining.String())
}

// =============================================================================
// SEND INVOICE
// =============================================================================

func TestSendInvoice_FailureLeavesInvoiceUnchanged(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)
	d := &recordingDeliverer{err: errors.New("connection refused")}

	_, err := f.svc.SendInvoice(f.ctx, inv.ID, d)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDeliveryFailure))
	var derr *ledger.DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "test", derr.Channel)

	after := f.reload(inv.ID)
	assert.Equal(t, ledger.StatusPending, after.Status)
	assert.Equal(t, int64(1), after.Version)
}

func TestSendInvoice_MarksPaidAfterDelivery(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)
	d := &recordingDeliverer{}

	already, err := f.svc.SendInvoice(f.ctx, inv.ID, d)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, ledger.StatusPaid, f.reload(inv.ID).Status)

	require.Len(t, d.docs, 1)
	doc := d.docs[0]
	assert.Equal(t, "Acme Infra", doc.Client.Name)
	assert.Equal(t, "Tower A", doc.Project.Name)
	assert.Equal(t, ledger.DefaultInvoicePrefix, doc.Settings.InvoicePrefix)
	assert.Equal(t, "9000.00", doc.CGSTAmount.String())
	assert.Equal(t, "18", doc.GSTPercent.String())
	assert.Equal(t, "113000.00", doc.Financials.CertifiedAmount.String())

	// Resending an already paid invoice still delivers and reports it
	already, err = f.svc.SendInvoice(f.ctx, inv.ID, d)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Len(t, d.docs, 2)
}

// =============================================================================
// ENTITIES
// =============================================================================

func TestCreateInvoice_DuplicateNumber(t *testing.T) {
	f := newFixture(t)
	first := f.invoice(nil)

	dup := standardInvoice()
	dup.ProjectID = f.project.ID
	dup.Number = first.Number
	_, err := f.svc.CreateInvoice(f.ctx, dup)

	assert.True(t, errors.Is(err, ledger.ErrDuplicateInvoiceNumber))
	assert.True(t, ledger.IsClientError(err))
}

func TestCreateInvoice_UnknownProject(t *testing.T) {
	f := newFixture(t)

	inv := standardInvoice()
	inv.ProjectID = "nope"
	_, err := f.svc.CreateInvoice(f.ctx, inv)

	assert.True(t, ledger.IsNotFound(err))
}

func TestCreateProject_UnknownClient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProject(f.ctx, ledger.Project{ClientID: "nope", Name: "X"})

	assert.True(t, ledger.IsNotFound(err))
}

func TestDeleteClient_Cascades(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(nil)
	_, err := f.pay(inv.ID, "1000", false)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteClient(f.ctx, f.client.ID))

	_, err = f.svc.GetProject(f.ctx, f.project.ID)
	assert.True(t, ledger.IsNotFound(err))
	_, err = f.svc.GetInvoice(f.ctx, inv.ID)
	assert.True(t, ledger.IsNotFound(err))
	payments, err := f.mem.ListPayments(f.ctx, ledger.PaymentFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestProjectFinancials(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(nil)
	f.invoice(nil)
	_, err := f.pay(a.ID, "50000", false)
	require.NoError(t, err)

	report, err := f.svc.ProjectFinancials(f.ctx, f.project.ID)
	require.NoError(t, err)

	assert.Len(t, report.Invoices, 2)
	assert.Equal(t, "226000.00", report.Financials.CertifiedAmount.String())
	assert.Equal(t, "186000.00", report.Financials.BalanceDue.String())
	assert.Equal(t, 2, report.Breakdown.InvoiceCount)
	assert.Equal(t, "Acme Infra", report.Project.ClientName)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestAggregateFinancials_MatchesPerInvoiceSum(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(nil)
	b := f.invoice(func(inv *ledger.Invoice) { inv.TDSAmount = m("1500") })
	f.invoice(func(inv *ledger.Invoice) { inv.OtherDeductions = m("999999") })
	_, err := f.pay(a.ID, "118000", false)
	require.NoError(t, err)
	_, err = f.pay(a.ID, "5000", true)
	require.NoError(t, err)
	_, err = f.pay(b.ID, "12345.67", false)
	require.NoError(t, err)

	total, err := f.svc.AggregateFinancials(f.ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)

	views, err := f.svc.ListInvoices(f.ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)
	var want ledger.Financials
	for _, v := range views {
		want = want.Add(v.Financials)
	}
	assert.True(t, want.Equal(total))

	paid, err := f.svc.AggregateFinancials(f.ctx, ledger.InvoiceFilter{Status: ledger.StatusPaid})
	require.NoError(t, err)
	pending, err := f.svc.AggregateFinancials(f.ctx, ledger.InvoiceFilter{Status: ledger.StatusPending})
	require.NoError(t, err)
	assert.True(t, total.Equal(paid.Add(pending)))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(func(inv *ledger.Invoice) { inv.DueDate = ledger.MustDate("2025-06-01") })
	b := f.invoice(nil)
	_, err := f.svc.MarkPaid(f.ctx, b.ID)
	require.NoError(t, err)

	d, err := f.svc.Dashboard(f.ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)

	assert.Equal(t, 2, d.Summary.Counts.Total)
	assert.Equal(t, 1, d.Summary.Counts.Paid)
	assert.Equal(t, 1, d.Summary.Counts.Overdue)
	assert.Equal(t, "500000.00", d.Summary.ContractValue.String())
	require.Len(t, d.Projects, 1)
	assert.Equal(t, 2, d.Projects[0].InvoiceCount)
	require.Len(t, d.Recent, 2)
	assert.Equal(t, b.ID, d.Recent[0].ID, "newest first")

	// b is paid with retention held: 113000 certified, 18000 of it tax
	assert.Equal(t, "18000.00", d.Summary.GSTCollected.String())
	assert.Equal(t, "95000.00", d.Summary.NetProfit.String())
	assert.Equal(t, 1, d.Summary.ProjectCount)
	assert.Equal(t, 1, d.Summary.ClientCount)

	_, err = f.svc.CreateClient(f.ctx, ledger.Client{Name: "Idle Co", Phone: "9000000000", Email: "idle@example.in"})
	require.NoError(t, err)
	d, err = f.svc.Dashboard(f.ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Summary.ClientCount, "clients without projects count when unscoped")
	d, err = f.svc.Dashboard(f.ctx, ledger.InvoiceFilter{ClientID: f.client.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Summary.ClientCount)

	report, err := f.svc.OverdueReport(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Overdue, 1)
	assert.Equal(t, a.ID, report.Overdue[0].InvoiceID)
	assert.Equal(t, 14, report.Overdue[0].DaysOverdue)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.invoice(nil)

	res, err := f.svc.Search(f.ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, res.Clients, 1)
	assert.Len(t, res.Projects, 1)
	assert.Len(t, res.Invoices, 1)

	res, err = f.svc.Search(f.ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, res.Clients)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_DefaultsAndNextNumber(t *testing.T) {
	f := newFixture(t)

	cs, err := f.svc.Settings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV", cs.InvoicePrefix)
	assert.Equal(t, ledger.DefaultInvoiceFooter, cs.InvoiceFooter)

	next, err := f.svc.NextInvoiceNumber(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", next)

	f.invoice(func(inv *ledger.Invoice) { inv.Number = "INV-0007" })
	f.invoice(func(inv *ledger.Invoice) { inv.Number = "INV-abc" })
	next, err = f.svc.NextInvoiceNumber(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-0008", next)

	cs.InvoicePrefix = ""
	cs.CompanyName = "Warp Builders"
	saved, err := f.svc.UpdateSettings(f.ctx, cs)
	require.NoError(t, err)
	assert.Equal(t, "INV", saved.InvoicePrefix, "blank prefix falls back to the default")

	cs, err = f.svc.Settings(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "Warp Builders", cs.CompanyName)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.invoice(nil)

	require.NoError(t, f.svc.Reset(f.ctx))

	clients, err := f.svc.ListClients(f.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, clients)
}
