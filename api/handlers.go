/*
handlers.go - HTTP API handlers for the billing ledger

PURPOSE:
  Exposes the ledger Service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to the ledger package.
  No money is computed here.

REQUEST FLOW:
  1. Parse HTTP request (path, query, JSON body)
  2. Call the ledger Service
  3. Serialize response
  4. Map errors to status codes (writeServiceError)

ERROR HANDLING:
  - 400: Malformed input, payment outside its ceiling, missing confirm=true
  - 404: Client, project or invoice not found
  - 409: Version conflict, duplicate invoice number
  - 422: Field validation failures (with per-field messages)
  - 502: Invoice delivery failed
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - workflow.go: Payments, mark-paid, TDS, send
  - reports.go: Reports, export, search, settings
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *ledger.Service
	Deliverer ledger.Deliverer
	Scanner   *OverdueScanner

	log *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around svc. Invoices are sent through
// deliverer.
func NewHandler(svc *ledger.Service, deliverer ledger.Deliverer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: svc, Deliverer: deliverer, log: log}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients, optionally filtered by ?q=.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Service.ListClients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, "Failed to list clients", err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetClient(r.Context(), ledger.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ledger.Client
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Service.CreateClient(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req ledger.Client
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = ledger.ClientID(chi.URLParam(r, "id"))
	c, err := h.Service.UpdateClient(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update client", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteClient removes the client and everything under it. Requires
// ?confirm=true.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if !requireConfirmation(w, r) {
		return
	}
	if err := h.Service.DeleteClient(r.Context(), ledger.ClientID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects supports ?client_id=, ?status= and ?q=.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ProjectFilter{
		ClientID: ledger.ClientID(q.Get("client_id")),
		Status:   ledger.ProjectStatus(q.Get("status")),
		Search:   q.Get("q"),
	}
	projects, err := h.Service.ListProjects(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProject(r.Context(), ledger.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Service.CreateProject(r.Context(), req.toProject(""))
	if err != nil {
		h.writeServiceError(w, r, "Failed to create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Service.UpdateProject(r.Context(), req.toProject(ledger.ProjectID(chi.URLParam(r, "id"))))
	if err != nil {
		h.writeServiceError(w, r, "Failed to update project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject removes the project with its invoices and payments.
// Requires ?confirm=true.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if !requireConfirmation(w, r) {
		return
	}
	if err := h.Service.DeleteProject(r.Context(), ledger.ProjectID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, "Failed to delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProjectFinancials returns the project with its invoices and totals.
func (h *Handler) GetProjectFinancials(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.ProjectFinancials(r.Context(), ledger.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get project financials", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices supports the filters of parseInvoiceFilter.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInvoiceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	invoices, err := h.Service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "Failed to list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.GetInvoice(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.Service.CreateInvoice(r.Context(), req.toInvoice("", newInvoiceDefaults))
	if err != nil {
		h.writeServiceError(w, r, "Failed to create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	current, err := h.Service.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "Failed to update invoice", err)
		return
	}
	inv, err := h.Service.UpdateInvoice(r.Context(), req.toInvoice(id, current.Invoice))
	if err != nil {
		h.writeServiceError(w, r, "Failed to update invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// DeleteInvoice removes the invoice and its payments. Requires ?confirm=true.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if !requireConfirmation(w, r) {
		return
	}
	if err := h.Service.DeleteInvoice(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id"))); err != nil {
		h.writeServiceError(w, r, "Failed to delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetInvoiceFinancials(w http.ResponseWriter, r *http.Request) {
	fin, err := h.Service.InvoiceFinancials(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, "Failed to get invoice financials", err)
		return
	}
	writeJSON(w, http.StatusOK, fin)
}

func (h *Handler) NextInvoiceNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.Service.NextInvoiceNumber(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to suggest invoice number", err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceNumberDTO{InvoiceNumber: number})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseInvoiceFilter reads project_id, client_id, status, financial_year
// (YYYY-YYYY), start_date, end_date and q.
func parseInvoiceFilter(r *http.Request) (ledger.InvoiceFilter, error) {
	q := r.URL.Query()
	filter := ledger.InvoiceFilter{
		ProjectID: ledger.ProjectID(q.Get("project_id")),
		ClientID:  ledger.ClientID(q.Get("client_id")),
		Search:    q.Get("q"),
	}

	switch status := ledger.InvoiceStatus(q.Get("status")); status {
	case "", ledger.StatusPending, ledger.StatusPaid:
		filter.Status = status
	default:
		return ledger.InvoiceFilter{}, fmt.Errorf("unknown status %q", status)
	}

	if fy := q.Get("financial_year"); fy != "" {
		rng, err := ledger.FinancialYear(fy)
		if err != nil {
			return ledger.InvoiceFilter{}, err
		}
		filter.Range = rng
	}
	rng, err := parseDateRange(r)
	if err != nil {
		return ledger.InvoiceFilter{}, err
	}
	if !rng.From.IsZero() {
		filter.Range.From = rng.From
	}
	if !rng.To.IsZero() {
		filter.Range.To = rng.To
	}
	return filter, nil
}

// parseDateRange reads ?start_date= and ?end_date= (YYYY-MM-DD, inclusive).
func parseDateRange(r *http.Request) (ledger.DateRange, error) {
	from, err := ledger.ParseDate(r.URL.Query().Get("start_date"))
	if err != nil {
		return ledger.DateRange{}, err
	}
	to, err := ledger.ParseDate(r.URL.Query().Get("end_date"))
	if err != nil {
		return ledger.DateRange{}, err
	}
	return ledger.DateRange{From: from, To: to}, nil
}

// requireConfirmation rejects destructive requests without ?confirm=true.
func requireConfirmation(w http.ResponseWriter, r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !ok {
		writeError(w, http.StatusBadRequest,
			"Deletion cascades to all dependent records; repeat with ?confirm=true",
			ledger.ErrConfirmationRequired)
	}
	return ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps ledger errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Details: err.Error(),
			Fields:  verr.FieldMap(),
		})
	case errors.Is(err, ledger.ErrInvalidPaymentAmount), errors.Is(err, ledger.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrConcurrentModification), errors.Is(err, ledger.ErrDuplicateInvoiceNumber):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrDeliveryFailure):
		logger.Ctx(r.Context(), h.log).Warn(message, zap.Error(err))
		writeError(w, http.StatusBadGateway, message, err)
	default:
		logger.Ctx(r.Context(), h.log).Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
