/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	construction billing data. Every record goes through the Service, so
	normalization, validation and the payment ceilings apply exactly as
	they do for user input.

AVAILABLE SCENARIOS:

	construction-demo: One client, two projects, invoices in every state
	                   (pending, part paid with TDS, overdue, fully paid
	                   with retention released, retention overdue)
	retention-cycle:   A single invoice taken through full payment and
	                   retention release

HOW SCENARIOS WORK:
 1. Reset the ledger (clear all data, settings included)
 2. Save company settings
 3. Create client and projects
 4. Create invoices dated relative to today
 5. Record payments, mark paid, verify TDS

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "construction-demo"}

NOTE:

	Scenarios reset the ledger. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - ledger/payments.go: RecordPayment, MarkPaid, VerifyTDS
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "construction-demo",
		Name:        "Construction Demo",
		Description: "One client, two projects, invoices in every payment and retention state",
	},
	{
		ID:          "retention-cycle",
		Name:        "Retention Cycle",
		Description: "A 1,00,000 invoice paid in full, then its 5% retention paid and released",
	},
}

var scenarioLoaders = map[string]func(context.Context, *ledger.Service) error{
	"construction-demo": loadConstructionDemo,
	"retention-cycle":   loadRetentionCycle,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the ledger and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Service.Reset(ctx); err != nil {
		h.writeServiceError(w, r, "Failed to reset ledger", err)
		return
	}
	if err := load(ctx, h.Service); err != nil {
		h.writeServiceError(w, r, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Service.Reset(r.Context()); err != nil {
		h.writeServiceError(w, r, "Failed to reset ledger", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func pct(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// scenarioInvoice is a standard 9+9% GST, 5% retention invoice.
func scenarioInvoice(project ledger.ProjectID, number string, amount string, issued ledger.Date) ledger.Invoice {
	return ledger.Invoice{
		ProjectID:        project,
		Number:           number,
		ContractAmount:   ledger.MustMoney(amount),
		InvoiceDate:      issued,
		DueDate:          issued.AddDays(30),
		CGSTPercent:      pct(9),
		SGSTPercent:      pct(9),
		RetentionType:    ledger.RetentionPercent,
		RetentionPercent: pct(5),
		RetentionDueDate: issued.AddMonths(12),
	}
}

type demoBook struct {
	ctx context.Context
	svc *ledger.Service
	err error
}

func (b *demoBook) invoice(inv ledger.Invoice) ledger.InvoiceID {
	if b.err != nil {
		return ""
	}
	v, err := b.svc.CreateInvoice(b.ctx, inv)
	if err != nil {
		b.err = fmt.Errorf("invoice %s: %w", inv.Number, err)
		return ""
	}
	return v.ID
}

func (b *demoBook) pay(id ledger.InvoiceID, amount string, on ledger.Date, mode ledger.PaymentMode, retention bool) {
	if b.err != nil {
		return
	}
	_, err := b.svc.RecordPayment(b.ctx, ledger.PaymentRequest{
		InvoiceID:          id,
		Amount:             ledger.MustMoney(amount),
		Date:               on,
		Mode:               mode,
		AppliesToRetention: retention,
	})
	if err != nil {
		b.err = fmt.Errorf("payment on %s: %w", id, err)
	}
}

func (b *demoBook) markPaid(id ledger.InvoiceID) {
	if b.err != nil {
		return
	}
	if _, err := b.svc.MarkPaid(b.ctx, id); err != nil {
		b.err = err
	}
}

func (b *demoBook) verifyTDS(id ledger.InvoiceID) {
	if b.err != nil {
		return
	}
	if _, err := b.svc.VerifyTDS(b.ctx, id); err != nil {
		b.err = err
	}
}

func seedCompany(ctx context.Context, svc *ledger.Service) (ledger.ClientID, error) {
	_, err := svc.UpdateSettings(ctx, ledger.CompanySettings{
		CompanyName:   "Om Enterprises",
		Email:         "billing@om-enterprises.example",
		Phone:         "9820012345",
		Address:       "Plot 14, MIDC, Pune 411019",
		InvoicePrefix: "OM",
		InvoiceFooter: ledger.DefaultInvoiceFooter,
	})
	if err != nil {
		return "", err
	}
	client, err := svc.CreateClient(ctx, ledger.Client{
		Name:          "Skyline Developers",
		Phone:         "9876543210",
		Email:         "accounts@skyline.example",
		Address:       "Baner Road, Pune",
		GSTNumber:     "27AABCS1234F1Z5",
		PANNumber:     "AABCS1234F",
		ContactPerson: "R. Kulkarni",
	})
	if err != nil {
		return "", err
	}
	return client.ID, nil
}

func loadConstructionDemo(ctx context.Context, svc *ledger.Service) error {
	today := svc.Today()

	clientID, err := seedCompany(ctx, svc)
	if err != nil {
		return err
	}

	tower, err := svc.CreateProject(ctx, ledger.Project{
		ClientID:         clientID,
		Name:             "Skyline Tower A",
		WorkOrderNo:      "WO-2024-117",
		ContractAmount:   ledger.MustMoney("2500000"),
		RetentionPercent: pct(5),
		GSTPercent:       ledger.DefaultProjectGSTPercent,
		StartDate:        today.AddMonths(-8),
		EndDate:          today.AddMonths(10),
		ScopeOfWork:      "Structural steel and cladding",
		ProjectManager:   "A. Deshmukh",
	})
	if err != nil {
		return err
	}
	warehouse, err := svc.CreateProject(ctx, ledger.Project{
		ClientID:         clientID,
		Name:             "Chakan Warehouse",
		WorkOrderNo:      "WO-2023-052",
		ContractAmount:   ledger.MustMoney("800000"),
		RetentionPercent: pct(5),
		GSTPercent:       ledger.DefaultProjectGSTPercent,
		StartDate:        today.AddMonths(-20),
		EndDate:          today.AddMonths(-6),
		ScopeOfWork:      "Pre-engineered building",
		Status:           ledger.ProjectCompleted,
	})
	if err != nil {
		return err
	}

	b := &demoBook{ctx: ctx, svc: svc}

	// Fresh RA bill: certified 1,13,000, balance due 1,18,000.
	b.invoice(scenarioInvoice(tower.ID, "OM-0001", "100000", today.AddDays(-5)))

	// Part paid by cheque with TDS deducted and verified.
	partly := scenarioInvoice(tower.ID, "OM-0002", "250000", today.AddDays(-25))
	partly.TDSAmount = ledger.MustMoney("5000")
	id := b.invoice(partly)
	b.pay(id, "150000", today.AddDays(-10), ledger.ModeCheque, false)
	b.verifyTDS(id)

	// Overdue with unverified TDS.
	late := scenarioInvoice(tower.ID, "OM-0003", "180000", today.AddDays(-75))
	late.TDSAmount = ledger.MustMoney("3600")
	b.invoice(late)

	// Paid in full, retention paid and released.
	id = b.invoice(scenarioInvoice(warehouse.ID, "OM-0004", "400000", today.AddMonths(-14)))
	b.pay(id, "472000", today.AddMonths(-13), ledger.ModeBank, false)
	b.pay(id, "20000", today.AddMonths(-1), ledger.ModeBank, true)
	b.markPaid(id)

	// Paid before payment records existed; fixed retention now overdue.
	old := scenarioInvoice(warehouse.ID, "OM-0005", "300000", today.AddMonths(-16))
	old.RetentionType = ledger.RetentionAmount
	old.RetentionFixedAmount = ledger.MustMoney("15000")
	old.RetentionDueDate = today.AddMonths(-2)
	old.PaidAmount = ledger.MustMoney("339000")
	old.PaymentDate = today.AddMonths(-15)
	id = b.invoice(old)
	b.markPaid(id)

	return b.err
}

func loadRetentionCycle(ctx context.Context, svc *ledger.Service) error {
	today := svc.Today()

	clientID, err := seedCompany(ctx, svc)
	if err != nil {
		return err
	}
	project, err := svc.CreateProject(ctx, ledger.Project{
		ClientID:       clientID,
		Name:           "Site Office Fit-out",
		ContractAmount: ledger.MustMoney("100000"),
		GSTPercent:     ledger.DefaultProjectGSTPercent,
	})
	if err != nil {
		return err
	}

	b := &demoBook{ctx: ctx, svc: svc}
	id := b.invoice(scenarioInvoice(project.ID, "OM-0001", "100000", today.AddDays(-40)))
	b.pay(id, "118000", today.AddDays(-20), ledger.ModeOnline, false)
	b.pay(id, "2500", today.AddDays(-5), ledger.ModeOnline, true)
	b.pay(id, "2500", today, ledger.ModeOnline, true)
	b.markPaid(id)
	return b.err
}
