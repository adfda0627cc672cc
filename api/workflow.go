package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// PAYMENT WORKFLOW HANDLERS
// =============================================================================

// RecordPayment records a payment against the balance or the held retention.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.Service.RecordPayment(r.Context(), ledger.PaymentRequest{
		InvoiceID:          ledger.InvoiceID(chi.URLParam(r, "id")),
		Amount:             req.Amount,
		Date:               req.PaymentDate,
		Mode:               req.PaymentMode,
		Notes:              req.Notes,
		AppliesToRetention: req.AppliesToRetention,
	})
	if err != nil {
		h.writeServiceError(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ListPayments returns the raw payment records, newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.ListPayments(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// GetPaymentHistory returns payments oldest first with running totals over
// the ?start_date=&end_date= window.
func (h *Handler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	window, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	history, err := h.Service.PaymentHistory(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id")), window)
	if err != nil {
		h.writeServiceError(w, r, "Failed to get payment history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// MarkPaid sets the invoice status to Paid. Repeating it is not an error.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	alreadyPaid, err := h.Service.MarkPaid(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to mark invoice paid", err)
		return
	}
	msg := "Invoice marked as paid"
	if alreadyPaid {
		msg = "Invoice is already paid"
	}
	h.writeStatusChange(w, r, id, !alreadyPaid, msg)
}

// VerifyTDS records that the deducted TDS has been verified.
func (h *Handler) VerifyTDS(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	changed, err := h.Service.VerifyTDS(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to verify TDS", err)
		return
	}
	msg := "TDS verified"
	if !changed {
		msg = "No unverified TDS on this invoice"
	}
	h.writeStatusChange(w, r, id, changed, msg)
}

// SendInvoice delivers the invoice and marks it paid once delivery succeeds.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	if h.Deliverer == nil {
		writeError(w, http.StatusServiceUnavailable, "No delivery channel configured", nil)
		return
	}
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	alreadyPaid, err := h.Service.SendInvoice(r.Context(), id, h.Deliverer)
	if err != nil {
		h.writeServiceError(w, r, "Failed to send invoice", err)
		return
	}
	msg := "Invoice sent via " + h.Deliverer.Channel() + " and marked as paid"
	if alreadyPaid {
		msg = "Invoice sent via " + h.Deliverer.Channel() + "; it was already paid"
	}
	h.writeStatusChange(w, r, id, !alreadyPaid, msg)
}

func (h *Handler) writeStatusChange(w http.ResponseWriter, r *http.Request, id ledger.InvoiceID, changed bool, msg string) {
	inv, err := h.Service.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to reload invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusChangeResponse{Changed: changed, Message: msg, Invoice: inv})
}
