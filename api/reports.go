package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/warp/billing-ledger/export"
	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetAggregate returns the six financial figures summed over the invoices
// matching the filter.
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInvoiceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	fin, err := h.Service.AggregateFinancials(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "Failed to aggregate invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, fin)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInvoiceFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	d, err := h.Service.Dashboard(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetOverdue returns the overdue scanner's last result, scanning now when
// there is none yet. ?refresh=true forces a fresh scan.
func (h *Handler) GetOverdue(w http.ResponseWriter, r *http.Request) {
	var (
		report ledger.OverdueReport
		err    error
	)
	switch {
	case h.Scanner == nil:
		report, err = h.Service.OverdueReport(r.Context())
	case r.URL.Query().Get("refresh") == "true":
		report, err = h.Scanner.ScanNow(r.Context())
	default:
		var ok bool
		if report, ok = h.Scanner.Last(); !ok {
			report, err = h.Scanner.ScanNow(r.Context())
		}
	}
	if err != nil {
		h.writeServiceError(w, r, "Failed to build overdue report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportInvoicesCSV streams the filtered invoice list as CSV.
func (h *Handler) ExportInvoicesCSV(w http.ResponseWriter, r *http.Request) {
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

	var buf bytes.Buffer
	if err := export.WriteInvoicesCSV(&buf, invoices); err != nil {
		h.writeServiceError(w, r, "Failed to export invoices", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="invoices-%s.csv"`, h.Service.Today()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Search runs the global search over clients, projects and invoices.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, "Search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Service.Settings(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req ledger.CompanySettings
	if !decodeBody(w, r, &req) {
		return
	}
	cs, err := h.Service.UpdateSettings(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}
