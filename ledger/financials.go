/*
financials.go - The financial formula engine

PURPOSE:
  The single definition of every derived invoice figure. Dashboards, list
  views, exports, delivered documents and the payment workflow all call
  ComputeInvoiceFinancials; nothing else in the repository recomputes tax,
  retention, certified amount, received amount or balance due.

FORMULAS (evaluated in this order, each output quantized once):
  1. tax         = contract * (cgst + sgst) / 100
  2. retention   = contract * retention% / 100   (type percent)
                 = retention_fixed_amount         (type amount)
  3. certified   = max(0, contract + tax - other_deductions - (released ? 0 : retention))
  4. received    = paid - tds + (released ? +retention : -retention)
  5. balance_due = certified - received - tds
  6. pending     = contract - paid

  Retention is excluded from "received" until it is released, matching the
  certified-amount treatment, so received and certified move together.
  TDS is withheld by the client: it is credited toward settlement but never
  physically received, so balance_due subtracts it a second time.

SEE ALSO:
  - aggregate.go: Set-level sums of these outputs
  - payments.go: Payment ceilings derived from these outputs
*/
package ledger

// =============================================================================
// FINANCIALS SNAPSHOT - The six derived outputs
// =============================================================================

// Financials holds the derived figures of one invoice or the sum over a set
// of invoices.
type Financials struct {
	TaxAmount       Money `json:"tax_amount"`
	RetentionAmount Money `json:"retention_amount"`
	CertifiedAmount Money `json:"certified_amount"`
	TotalReceived   Money `json:"total_received"`
	BalanceDue      Money `json:"balance_due"`
	PendingAmount   Money `json:"pending_amount"`
}

// Add returns the field-wise sum.
func (f Financials) Add(o Financials) Financials {
	return Financials{
		TaxAmount:       f.TaxAmount.Add(o.TaxAmount),
		RetentionAmount: f.RetentionAmount.Add(o.RetentionAmount),
		CertifiedAmount: f.CertifiedAmount.Add(o.CertifiedAmount),
		TotalReceived:   f.TotalReceived.Add(o.TotalReceived),
		BalanceDue:      f.BalanceDue.Add(o.BalanceDue),
		PendingAmount:   f.PendingAmount.Add(o.PendingAmount),
	}
}

// Equal compares all six outputs.
func (f Financials) Equal(o Financials) bool {
	return f.TaxAmount.Equal(o.TaxAmount) &&
		f.RetentionAmount.Equal(o.RetentionAmount) &&
		f.CertifiedAmount.Equal(o.CertifiedAmount) &&
		f.TotalReceived.Equal(o.TotalReceived) &&
		f.BalanceDue.Equal(o.BalanceDue) &&
		f.PendingAmount.Equal(o.PendingAmount)
}

// =============================================================================
// FORMULA ENGINE
// =============================================================================

// ComputeInvoiceFinancials derives the six outputs from an invoice's stored
// fields. It is pure: the same invoice always yields the same snapshot.
func ComputeInvoiceFinancials(inv Invoice) Financials {
	tax := InvoiceTax(inv)
	retention := InvoiceRetention(inv)

	gross := inv.ContractAmount.Add(tax).Sub(inv.OtherDeductions)
	if !inv.RetentionReleased {
		gross = gross.Sub(retention)
	}
	certified := gross.Quantize().Max(Money{})

	received := inv.PaidAmount.Sub(inv.TDSAmount)
	if inv.RetentionReleased {
		received = received.Add(retention)
	} else {
		received = received.Sub(retention)
	}
	received = received.Quantize()

	return Financials{
		TaxAmount:       tax,
		RetentionAmount: retention,
		CertifiedAmount: certified,
		TotalReceived:   received,
		BalanceDue:      certified.Sub(received).Sub(inv.TDSAmount).Quantize(),
		PendingAmount:   inv.ContractAmount.Sub(inv.PaidAmount).Quantize(),
	}
}

// InvoiceTax is the combined CGST+SGST on the contract amount.
func InvoiceTax(inv Invoice) Money {
	return inv.ContractAmount.MulPercent(inv.CGSTPercent.Add(inv.SGSTPercent)).Quantize()
}

// InvoiceRetention is the retention withheld, per the selected retention type.
// An unrecognized type withholds nothing.
func InvoiceRetention(inv Invoice) Money {
	switch inv.RetentionType {
	case RetentionPercent:
		return inv.ContractAmount.MulPercent(inv.RetentionPercent).Quantize()
	case RetentionAmount:
		return inv.RetentionFixedAmount.Quantize()
	default:
		return Money{}
	}
}

// OutstandingRetention is retention not yet paid, never negative.
func OutstandingRetention(inv Invoice) Money {
	return InvoiceRetention(inv).Sub(inv.RetentionPaidAmount).Quantize().Max(Money{})
}

// CGSTAmount and SGSTAmount split the tax for documents that print both halves.
func CGSTAmount(inv Invoice) Money {
	return inv.ContractAmount.MulPercent(inv.CGSTPercent).Quantize()
}

func SGSTAmount(inv Invoice) Money {
	return inv.ContractAmount.MulPercent(inv.SGSTPercent).Quantize()
}
