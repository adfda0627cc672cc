// Package store provides an in-memory ledger.TxStore for tests and dev runs.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/billing-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	seq      int64
	clients  map[ledger.ClientID]ledger.Client
	projects map[ledger.ProjectID]projectRecord
	invoices map[ledger.InvoiceID]invoiceRecord
	payments []paymentRecord
	settings *ledger.CompanySettings
}

type projectRecord struct {
	seq     int64
	project ledger.Project
}

type invoiceRecord struct {
	seq     int64
	invoice ledger.Invoice
}

type paymentRecord struct {
	seq     int64
	payment ledger.Payment
}

func newState() *state {
	return &state{
		clients:  make(map[ledger.ClientID]ledger.Client),
		projects: make(map[ledger.ProjectID]projectRecord),
		invoices: make(map[ledger.InvoiceID]invoiceRecord),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

var _ ledger.TxStore = (*Memory)(nil)
var _ ledger.SettingsStore = (*Memory)(nil)

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) CreateClient(_ context.Context, c ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createClient(c)
}

func (m *Memory) GetClient(_ context.Context, id ledger.ClientID) (ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getClient(id)
}

func (m *Memory) UpdateClient(_ context.Context, c ledger.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateClient(c)
}

func (m *Memory) DeleteClient(_ context.Context, id ledger.ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteClient(id)
}

func (m *Memory) ListClients(_ context.Context, search string) ([]ledger.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listClients(search), nil
}

func (m *Memory) CreateProject(_ context.Context, p ledger.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createProject(p)
}

func (m *Memory) GetProject(_ context.Context, id ledger.ProjectID) (ledger.ProjectRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getProject(id)
}

func (m *Memory) UpdateProject(_ context.Context, p ledger.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateProject(p)
}

func (m *Memory) DeleteProject(_ context.Context, id ledger.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteProject(id)
}

func (m *Memory) QueryProjects(_ context.Context, f ledger.ProjectFilter) ([]ledger.ProjectRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.queryProjects(f), nil
}

func (m *Memory) CreateInvoice(_ context.Context, inv ledger.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createInvoice(inv)
}

func (m *Memory) GetInvoice(_ context.Context, id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getInvoice(id)
}

func (m *Memory) UpdateInvoice(_ context.Context, inv ledger.Invoice) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateInvoice(inv)
}

func (m *Memory) DeleteInvoice(_ context.Context, id ledger.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteInvoice(id)
}

func (m *Memory) QueryInvoices(_ context.Context, f ledger.InvoiceFilter) ([]ledger.InvoiceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.queryInvoices(f), nil
}

func (m *Memory) AppendPayment(_ context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendPayment(p)
}

func (m *Memory) ListPayments(_ context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPayments(f), nil
}

// GetSettings returns the singleton, creating the default row on first read.
func (m *Memory) GetSettings(_ context.Context) (ledger.CompanySettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.settings == nil {
		s := ledger.DefaultSettings()
		m.st.settings = &s
	}
	return *m.st.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s ledger.CompanySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.settings = &s
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := &state{
		seq:      s.seq,
		clients:  make(map[ledger.ClientID]ledger.Client, len(s.clients)),
		projects: make(map[ledger.ProjectID]projectRecord, len(s.projects)),
		invoices: make(map[ledger.InvoiceID]invoiceRecord, len(s.invoices)),
		payments: append([]paymentRecord(nil), s.payments...),
	}
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	if s.settings != nil {
		settings := *s.settings
		c.settings = &settings
	}
	return c
}

// txView runs against the state while WithTx holds the lock.
type txView struct {
	st *state
}

func (tv *txView) CreateClient(_ context.Context, c ledger.Client) error { return tv.st.createClient(c) }
func (tv *txView) GetClient(_ context.Context, id ledger.ClientID) (ledger.Client, error) {
	return tv.st.getClient(id)
}
func (tv *txView) UpdateClient(_ context.Context, c ledger.Client) error { return tv.st.updateClient(c) }
func (tv *txView) DeleteClient(_ context.Context, id ledger.ClientID) error {
	return tv.st.deleteClient(id)
}
func (tv *txView) ListClients(_ context.Context, search string) ([]ledger.Client, error) {
	return tv.st.listClients(search), nil
}
func (tv *txView) CreateProject(_ context.Context, p ledger.Project) error {
	return tv.st.createProject(p)
}
func (tv *txView) GetProject(_ context.Context, id ledger.ProjectID) (ledger.ProjectRow, error) {
	return tv.st.getProject(id)
}
func (tv *txView) UpdateProject(_ context.Context, p ledger.Project) error {
	return tv.st.updateProject(p)
}
func (tv *txView) DeleteProject(_ context.Context, id ledger.ProjectID) error {
	return tv.st.deleteProject(id)
}
func (tv *txView) QueryProjects(_ context.Context, f ledger.ProjectFilter) ([]ledger.ProjectRow, error) {
	return tv.st.queryProjects(f), nil
}
func (tv *txView) CreateInvoice(_ context.Context, inv ledger.Invoice) error {
	return tv.st.createInvoice(inv)
}
func (tv *txView) GetInvoice(_ context.Context, id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	return tv.st.getInvoice(id)
}
func (tv *txView) UpdateInvoice(_ context.Context, inv ledger.Invoice) (int64, error) {
	return tv.st.updateInvoice(inv)
}
func (tv *txView) DeleteInvoice(_ context.Context, id ledger.InvoiceID) error {
	return tv.st.deleteInvoice(id)
}
func (tv *txView) QueryInvoices(_ context.Context, f ledger.InvoiceFilter) ([]ledger.InvoiceRow, error) {
	return tv.st.queryInvoices(f), nil
}
func (tv *txView) AppendPayment(_ context.Context, p ledger.Payment) error {
	return tv.st.appendPayment(p)
}
func (tv *txView) ListPayments(_ context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	return tv.st.listPayments(f), nil
}

// =============================================================================
// UNLOCKED STATE OPERATIONS
// =============================================================================

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *state) createClient(c ledger.Client) error {
	s.clients[c.ID] = c
	return nil
}

func (s *state) getClient(id ledger.ClientID) (ledger.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return ledger.Client{}, ledger.ClientNotFound(id)
	}
	return c, nil
}

func (s *state) updateClient(c ledger.Client) error {
	if _, ok := s.clients[c.ID]; !ok {
		return ledger.ClientNotFound(c.ID)
	}
	s.clients[c.ID] = c
	return nil
}

func (s *state) deleteClient(id ledger.ClientID) error {
	if _, ok := s.clients[id]; !ok {
		return ledger.ClientNotFound(id)
	}
	for pid, rec := range s.projects {
		if rec.project.ClientID == id {
			s.removeProject(pid)
		}
	}
	delete(s.clients, id)
	return nil
}

func (s *state) listClients(search string) []ledger.Client {
	out := []ledger.Client{}
	for _, c := range s.clients {
		if ledger.ClientMatches(c, search) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !strings.EqualFold(out[i].Name, out[j].Name) {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) createProject(p ledger.Project) error {
	if _, ok := s.clients[p.ClientID]; !ok {
		return ledger.ClientNotFound(p.ClientID)
	}
	s.projects[p.ID] = projectRecord{seq: s.nextSeq(), project: p}
	return nil
}

func (s *state) projectRow(p ledger.Project) ledger.ProjectRow {
	return ledger.ProjectRow{Project: p, ClientName: s.clients[p.ClientID].Name}
}

func (s *state) getProject(id ledger.ProjectID) (ledger.ProjectRow, error) {
	rec, ok := s.projects[id]
	if !ok {
		return ledger.ProjectRow{}, ledger.ProjectNotFound(id)
	}
	return s.projectRow(rec.project), nil
}

func (s *state) updateProject(p ledger.Project) error {
	rec, ok := s.projects[p.ID]
	if !ok {
		return ledger.ProjectNotFound(p.ID)
	}
	if _, ok := s.clients[p.ClientID]; !ok {
		return ledger.ClientNotFound(p.ClientID)
	}
	rec.project = p
	s.projects[p.ID] = rec
	return nil
}

func (s *state) deleteProject(id ledger.ProjectID) error {
	if _, ok := s.projects[id]; !ok {
		return ledger.ProjectNotFound(id)
	}
	s.removeProject(id)
	return nil
}

func (s *state) removeProject(id ledger.ProjectID) {
	for iid, rec := range s.invoices {
		if rec.invoice.ProjectID == id {
			s.removeInvoice(iid)
		}
	}
	delete(s.projects, id)
}

func (s *state) queryProjects(f ledger.ProjectFilter) []ledger.ProjectRow {
	recs := make([]projectRecord, 0, len(s.projects))
	for _, rec := range s.projects {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	out := []ledger.ProjectRow{}
	for _, rec := range recs {
		row := s.projectRow(rec.project)
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

func (s *state) createInvoice(inv ledger.Invoice) error {
	if _, ok := s.projects[inv.ProjectID]; !ok {
		return ledger.ProjectNotFound(inv.ProjectID)
	}
	for _, rec := range s.invoices {
		if rec.invoice.Number == inv.Number {
			return ledger.ErrDuplicateInvoiceNumber
		}
	}
	s.invoices[inv.ID] = invoiceRecord{seq: s.nextSeq(), invoice: inv}
	return nil
}

func (s *state) invoiceRow(inv ledger.Invoice) ledger.InvoiceRow {
	p := s.projects[inv.ProjectID].project
	return ledger.InvoiceRow{
		Invoice:     inv,
		ProjectName: p.Name,
		ClientID:    p.ClientID,
		ClientName:  s.clients[p.ClientID].Name,
	}
}

func (s *state) getInvoice(id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	rec, ok := s.invoices[id]
	if !ok {
		return ledger.InvoiceRow{}, ledger.InvoiceNotFound(id)
	}
	return s.invoiceRow(rec.invoice), nil
}

func (s *state) updateInvoice(inv ledger.Invoice) (int64, error) {
	rec, ok := s.invoices[inv.ID]
	if !ok {
		return 0, ledger.InvoiceNotFound(inv.ID)
	}
	if rec.invoice.Version != inv.Version {
		return 0, ledger.ErrConcurrentModification
	}
	if _, ok := s.projects[inv.ProjectID]; !ok {
		return 0, ledger.ProjectNotFound(inv.ProjectID)
	}
	for id, other := range s.invoices {
		if id != inv.ID && other.invoice.Number == inv.Number {
			return 0, ledger.ErrDuplicateInvoiceNumber
		}
	}
	inv.Version++
	rec.invoice = inv
	s.invoices[inv.ID] = rec
	return inv.Version, nil
}

func (s *state) deleteInvoice(id ledger.InvoiceID) error {
	if _, ok := s.invoices[id]; !ok {
		return ledger.InvoiceNotFound(id)
	}
	s.removeInvoice(id)
	return nil
}

func (s *state) removeInvoice(id ledger.InvoiceID) {
	kept := s.payments[:0]
	for _, rec := range s.payments {
		if rec.payment.InvoiceID != id {
			kept = append(kept, rec)
		}
	}
	s.payments = kept
	delete(s.invoices, id)
}

func (s *state) queryInvoices(f ledger.InvoiceFilter) []ledger.InvoiceRow {
	recs := make([]invoiceRecord, 0, len(s.invoices))
	for _, rec := range s.invoices {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	out := []ledger.InvoiceRow{}
	for _, rec := range recs {
		row := s.invoiceRow(rec.invoice)
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

func (s *state) appendPayment(p ledger.Payment) error {
	if _, ok := s.invoices[p.InvoiceID]; !ok {
		return ledger.InvoiceNotFound(p.InvoiceID)
	}
	s.payments = append(s.payments, paymentRecord{seq: s.nextSeq(), payment: p})
	return nil
}

func (s *state) listPayments(f ledger.PaymentFilter) []ledger.Payment {
	recs := []paymentRecord{}
	for _, rec := range s.payments {
		if f.Matches(rec.payment) {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.payment.Date.Equal(b.payment.Date) {
			if f.OldestFirst {
				return a.payment.Date.Before(b.payment.Date)
			}
			return a.payment.Date.After(b.payment.Date)
		}
		if f.OldestFirst {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})

	out := make([]ledger.Payment, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.payment)
	}
	return out
}
