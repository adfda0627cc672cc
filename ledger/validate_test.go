package ledger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/ledger"
)

func validInvoice() ledger.Invoice {
	inv := standardInvoice()
	inv.ProjectID = "p1"
	inv.Normalize(ledger.MustDate("2025-06-01"))
	return inv
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.FieldMap()
}

func TestValidateInvoice(t *testing.T) {
	require.NoError(t, ledger.ValidateInvoice(validInvoice()))

	tests := []struct {
		name   string
		mutate func(*ledger.Invoice)
		field  string
	}{
		{"missing number", func(inv *ledger.Invoice) { inv.Number = "" }, "invoice_number"},
		{"missing date", func(inv *ledger.Invoice) { inv.InvoiceDate = ledger.Date{} }, "invoice_date"},
		{"negative contract", func(inv *ledger.Invoice) { inv.ContractAmount = m("-1") }, "contract_amount"},
		{"cgst above 100", func(inv *ledger.Invoice) { inv.CGSTPercent = pct("100.5") }, "cgst_percent"},
		{"negative tds", func(inv *ledger.Invoice) { inv.TDSAmount = m("-0.01") }, "tds_amount"},
		{"unknown status", func(inv *ledger.Invoice) { inv.Status = "Void" }, "status"},
		{"unknown retention type", func(inv *ledger.Invoice) { inv.RetentionType = "bogus" }, "retention_type"},
		{"due before invoice date", func(inv *ledger.Invoice) { inv.DueDate = ledger.MustDate("2025-01-01") }, "due_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := validInvoice()
			tt.mutate(&inv)

			err := ledger.ValidateInvoice(inv)

			assert.True(t, errors.Is(err, ledger.ErrValidation))
			assert.True(t, ledger.IsClientError(err))
			assert.Contains(t, fieldsOf(t, err), tt.field)
		})
	}
}

func TestValidateClient(t *testing.T) {
	c := ledger.Client{Name: "Acme Infra", Phone: "9876543210", Email: "accounts@acme.in"}
	require.NoError(t, ledger.ValidateClient(c))

	c.Email = "not-an-email"
	c.Name = ""
	fields := fieldsOf(t, ledger.ValidateClient(c))
	assert.Equal(t, "Invalid email format", fields["email"])
	assert.Equal(t, "This field is required", fields["name"])
}

func TestValidateProject_EndBeforeStart(t *testing.T) {
	p := ledger.Project{
		ClientID:  "c1",
		Name:      "Tower A",
		StartDate: ledger.MustDate("2025-02-01"),
		EndDate:   ledger.MustDate("2025-01-01"),
	}
	p.Normalize()

	fields := fieldsOf(t, ledger.ValidateProject(p))
	assert.Contains(t, fields, "end_date")
}

func TestValidatePayment(t *testing.T) {
	p := ledger.Payment{InvoiceID: "i1", Amount: m("10"), Date: ledger.MustDate("2025-06-01"), Mode: ledger.ModeCash}
	require.NoError(t, ledger.ValidatePayment(p))

	p.Amount = ledger.Money{}
	assert.Contains(t, fieldsOf(t, ledger.ValidatePayment(p)), "amount")
}

func TestValidateSettings(t *testing.T) {
	require.NoError(t, ledger.ValidateSettings(ledger.DefaultSettings()))

	s := ledger.DefaultSettings()
	s.Email = "bad"
	s.InvoicePrefix = ""
	fields := fieldsOf(t, ledger.ValidateSettings(s))
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "invoice_prefix")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, ledger.IsNotFound(ledger.InvoiceNotFound("x")))
	assert.EqualError(t, ledger.ClientNotFound("c9"), `client "c9" not found`)

	derr := &ledger.DeliveryError{InvoiceID: "i1", Channel: "smtp", Err: errors.New("dial tcp: refused")}
	assert.True(t, errors.Is(derr, ledger.ErrDeliveryFailure))
	assert.True(t, ledger.IsRetryable(derr))
	assert.False(t, ledger.IsClientError(derr))

	perr := &ledger.InvalidPaymentAmountError{Amount: m("10"), Ceiling: m("5"), Retention: true}
	assert.Contains(t, perr.Error(), "outstanding retention 5.00")
	assert.True(t, ledger.IsClientError(perr))
}
