/*
payments.go - Payment and retention workflow

PURPOSE:
  The state transitions of an invoice after it is issued: recording a
  payment (optionally against retention), marking the invoice paid,
  verifying TDS, reporting payment history and sending the invoice.

ATOMICITY:
  RecordPayment appends the Payment and updates the Invoice inside one
  WithTx call. The invoice update is a version-checked compare-and-swap,
  so two payments racing on the same invoice cannot both apply against the
  same ceiling: the loser fails with ErrConcurrentModification.

CEILINGS:
  retention payment:              retention_amount - retention_paid_amount
  other payment (excluding_tds):  certified_amount - total_received
  other payment (net_of_tds):     balance_due (certified - received - tds)

SEE ALSO:
  - financials.go: The figures the ceilings are derived from
  - delivery.go: Collaborators used by SendInvoice
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// CEILING MODE
// =============================================================================

// CeilingMode selects whether TDS reduces the ceiling of non-retention payments.
type CeilingMode string

const (
	CeilingExcludingTDS CeilingMode = "excluding_tds"
	CeilingNetOfTDS     CeilingMode = "net_of_tds"
)

// ParseCeilingMode accepts a mode name. An empty string yields the default.
func ParseCeilingMode(s string) (CeilingMode, error) {
	switch CeilingMode(s) {
	case "", CeilingExcludingTDS:
		return CeilingExcludingTDS, nil
	case CeilingNetOfTDS:
		return CeilingNetOfTDS, nil
	default:
		return "", fmt.Errorf("unknown payment ceiling mode %q", s)
	}
}

// PaymentCeiling is the largest payment inv currently accepts.
func PaymentCeiling(inv Invoice, retention bool, mode CeilingMode) Money {
	if retention {
		return InvoiceRetention(inv).Sub(inv.RetentionPaidAmount).Quantize()
	}
	fin := ComputeInvoiceFinancials(inv)
	if mode == CeilingNetOfTDS {
		return fin.BalanceDue
	}
	return fin.CertifiedAmount.Sub(fin.TotalReceived).Quantize()
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

type PaymentRequest struct {
	InvoiceID InvoiceID
	Amount    Money
	// Date defaults to today.
	Date  Date
	Mode  PaymentMode
	Notes string
	// AppliesToRetention pays down held retention instead of the balance.
	AppliesToRetention bool
}

// PaymentResult is the recorded payment and the invoice it produced.
type PaymentResult struct {
	Payment           Payment    `json:"payment"`
	Invoice           Invoice    `json:"invoice"`
	Financials        Financials `json:"financials"`
	RetentionReleased bool       `json:"retention_released_now"`
}

// RecordPayment validates the amount against the invoice's current ceiling,
// appends the payment and updates the invoice, all in one transaction.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	amount := req.Amount.Quantize()
	date := req.Date
	if date.IsZero() {
		date = s.Today()
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeBank
	}

	var result PaymentResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		row, err := tx.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		inv := row.Invoice

		ceiling := PaymentCeiling(inv, req.AppliesToRetention, s.ceiling)
		if !amount.IsPositive() || amount.GreaterThan(ceiling) {
			return &InvalidPaymentAmountError{
				InvoiceID: inv.ID,
				Amount:    amount,
				Ceiling:   ceiling,
				Retention: req.AppliesToRetention,
			}
		}

		p := Payment{
			ID:        PaymentID(s.newID()),
			InvoiceID: inv.ID,
			Amount:    amount,
			Date:      date,
			Mode:      mode,
			Notes:     req.Notes,
			Retention: req.AppliesToRetention,
			CreatedAt: s.now(),
		}
		if err := ValidatePayment(p); err != nil {
			return err
		}
		if err := tx.AppendPayment(ctx, p); err != nil {
			return fmt.Errorf("append payment: %w", err)
		}

		inv.PaidAmount = inv.PaidAmount.Add(amount)
		inv.PaymentDate = date
		inv.LastPaymentAmount = amount
		releasedNow := false
		if req.AppliesToRetention {
			inv.RetentionPaidAmount = inv.RetentionPaidAmount.Add(amount)
			if !inv.RetentionReleased && inv.RetentionPaidAmount.GreaterThanOrEqual(InvoiceRetention(inv)) {
				inv.RetentionReleased = true
				inv.RetentionReleasedDate = date
				releasedNow = true
			}
		}
		inv.UpdatedAt = s.now()
		inv.Normalize(s.Today())

		version, err := tx.UpdateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.Version = version

		result = PaymentResult{
			Payment:           p,
			Invoice:           inv,
			Financials:        ComputeInvoiceFinancials(inv),
			RetentionReleased: releasedNow,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidPaymentAmount) {
			s.logger(ctx).Info("payment rejected", zap.String("invoice_id", string(req.InvoiceID)), zap.Error(err))
		}
		return PaymentResult{}, err
	}

	log := s.logger(ctx).With(
		zap.String("invoice_id", string(result.Invoice.ID)),
		zap.String("invoice_number", result.Invoice.Number))
	log.Info("payment recorded",
		zap.Stringer("amount", amount),
		zap.Bool("retention", req.AppliesToRetention),
		zap.Stringer("balance_due", result.Financials.BalanceDue))
	if result.RetentionReleased {
		log.Info("retention released", zap.Stringer("date", result.Invoice.RetentionReleasedDate))
	}
	return result, nil
}

// =============================================================================
// MARK PAID / VERIFY TDS
// =============================================================================

// MarkPaid sets the invoice status to Paid. Repeating it is harmless and
// reports alreadyPaid.
func (s *Service) MarkPaid(ctx context.Context, id InvoiceID) (alreadyPaid bool, err error) {
	err = s.store.WithTx(ctx, func(tx Store) error {
		row, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if row.IsPaid() {
			alreadyPaid = true
			return nil
		}
		inv := row.Invoice
		inv.Status = StatusPaid
		inv.UpdatedAt = s.now()
		inv.Normalize(s.Today())
		_, err = tx.UpdateInvoice(ctx, inv)
		return err
	})
	if err != nil {
		return false, err
	}
	if alreadyPaid {
		s.logger(ctx).Warn("invoice already paid", zap.String("invoice_id", string(id)))
	} else {
		s.logger(ctx).Info("invoice marked paid", zap.String("invoice_id", string(id)))
	}
	return alreadyPaid, nil
}

// VerifyTDS records that the withheld TDS was confirmed. It only applies to
// invoices with a positive TDS amount not yet verified; it never changes the
// TDS amount. Reports whether anything changed.
func (s *Service) VerifyTDS(ctx context.Context, id InvoiceID) (changed bool, err error) {
	err = s.store.WithTx(ctx, func(tx Store) error {
		row, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if !row.TDSAmount.IsPositive() || row.TDSVerified {
			return nil
		}
		inv := row.Invoice
		inv.TDSVerified = true
		inv.TDSVerifiedDate = s.Today()
		inv.UpdatedAt = s.now()
		inv.Normalize(s.Today())
		if _, err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger(ctx).Info("tds verified", zap.String("invoice_id", string(id)))
	}
	return changed, nil
}

// =============================================================================
// PAYMENT HISTORY
// =============================================================================

// InitialPaymentNote labels the entry synthesized for an invoice whose paid
// amount predates payment records.
const InitialPaymentNote = "Initial payment"

type PaymentHistoryEntry struct {
	Date         Date        `json:"date"`
	Amount       Money       `json:"amount"`
	Mode         PaymentMode `json:"mode"`
	ModeLabel    string      `json:"mode_label"`
	RunningTotal Money       `json:"running_total"`
	Notes        string      `json:"notes"`
	Retention    bool        `json:"applies_to_retention"`
}

type PaymentHistory struct {
	InvoiceID        InvoiceID             `json:"invoice_id"`
	InvoiceNumber    string                `json:"invoice_number"`
	Range            DateRange             `json:"-"`
	Entries          []PaymentHistoryEntry `json:"payments"`
	TotalPayments    int                   `json:"total_payments"`
	TotalAmountPaid  Money                 `json:"total_amount_paid"`
	BalanceRemaining Money                 `json:"balance_remaining"`
}

// PaymentHistory lists an invoice's payments oldest first with a running
// total over the filtered window only. BalanceRemaining always reflects the
// whole invoice and is never negative.
//
// An invoice with a paid amount but no payment records, queried without a
// date window, gets one synthesized "Initial payment" entry.
func (s *Service) PaymentHistory(ctx context.Context, id InvoiceID, window DateRange) (PaymentHistory, error) {
	row, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return PaymentHistory{}, err
	}
	payments, err := s.store.ListPayments(ctx, PaymentFilter{InvoiceID: id, Range: window, OldestFirst: true})
	if err != nil {
		return PaymentHistory{}, fmt.Errorf("list payments: %w", err)
	}
	sortPaymentsOldestFirst(payments)

	h := PaymentHistory{
		InvoiceID:     row.ID,
		InvoiceNumber: row.Number,
		Range:         window,
		Entries:       []PaymentHistoryEntry{},
	}

	running := Money{}
	if len(payments) == 0 && row.PaidAmount.IsPositive() && window.IsOpen() {
		date := row.PaymentDate
		if date.IsZero() {
			date = row.InvoiceDate
		}
		running = row.PaidAmount
		h.Entries = append(h.Entries, PaymentHistoryEntry{
			Date:         date,
			Amount:       row.PaidAmount,
			Mode:         row.PaymentMode,
			ModeLabel:    row.PaymentMode.Label(),
			RunningTotal: running,
			Notes:        InitialPaymentNote,
		})
	} else {
		for _, p := range payments {
			running = running.Add(p.Amount)
			h.Entries = append(h.Entries, PaymentHistoryEntry{
				Date:         p.Date,
				Amount:       p.Amount,
				Mode:         p.Mode,
				ModeLabel:    p.Mode.Label(),
				RunningTotal: running,
				Notes:        p.Notes,
				Retention:    p.Retention,
			})
		}
	}

	h.TotalPayments = len(h.Entries)
	h.TotalAmountPaid = running.Quantize()
	h.BalanceRemaining = ComputeInvoiceFinancials(row.Invoice).BalanceDue.Max(Money{})
	return h, nil
}

// ListPayments returns an invoice's payment records, newest first.
func (s *Service) ListPayments(ctx context.Context, id InvoiceID) ([]Payment, error) {
	if _, err := s.store.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, PaymentFilter{InvoiceID: id})
}

// =============================================================================
// SEND INVOICE
// =============================================================================

// SendInvoice delivers the invoice document and, only once delivery has
// succeeded, marks the invoice Paid. A delivery failure leaves the invoice
// exactly as it was and returns a *DeliveryError.
func (s *Service) SendInvoice(ctx context.Context, id InvoiceID, d Deliverer) (alreadyPaid bool, err error) {
	doc, err := s.InvoiceDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if err := d.Deliver(ctx, doc); err != nil {
		s.logger(ctx).Warn("invoice delivery failed",
			zap.String("invoice_id", string(id)),
			zap.String("channel", d.Channel()),
			zap.Error(err))
		return false, &DeliveryError{InvoiceID: id, Channel: d.Channel(), Err: err}
	}
	s.logger(ctx).Info("invoice delivered",
		zap.String("invoice_id", string(id)),
		zap.String("channel", d.Channel()))
	return s.MarkPaid(ctx, id)
}
