/*
service.go - Workflow operations over a TxStore

PURPOSE:
  Service is what the HTTP layer, the CLI and the background scanner call.
  It validates input, keeps relations intact, normalizes invoices before
  every write, and turns store rows into reports using the formula engine
  and the aggregate layer. Payment, mark-paid, TDS verification and send
  operations live in payments.go.

DEPENDENCIES (injected):
  - TxStore:        persistence with atomic multi-record writes
  - SettingsStore:  the company settings singleton (defaults to the TxStore
                    when it implements SettingsStore)
  - Clock:          "today" for normalization, flags and TDS verification
  - *zap.Logger:    fallback logger when the context carries none

SEE ALSO:
  - payments.go: Payment and retention workflow
  - store.go: Persistence contract
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/logger"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    TxStore
	settings SettingsStore
	clock    Clock
	log      *zap.Logger
	ceiling  CeilingMode
	newID    func() string
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }
func WithCeilingMode(m CeilingMode) Option { return func(s *Service) { s.ceiling = m } }
func WithSettingsStore(st SettingsStore) Option { return func(s *Service) { s.settings = st } }
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   SystemClock{},
		log:     zap.NewNop(),
		ceiling: CeilingExcludingTDS,
		newID:   uuid.NewString,
	}
	if st, ok := store.(SettingsStore); ok {
		s.settings = st
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logger(ctx context.Context) *zap.Logger { return logger.Ctx(ctx, s.log) }

// Today is the service clock's current day.
func (s *Service) Today() Date { return s.clock.Today() }

// CeilingMode reports how non-retention payment ceilings are computed.
func (s *Service) CeilingMode() CeilingMode { return s.ceiling }

func (s *Service) now() time.Time { return time.Now().UTC() }

// =============================================================================
// CLIENTS
// =============================================================================

func (s *Service) CreateClient(ctx context.Context, c Client) (Client, error) {
	c.ID = ClientID(s.newID())
	c.CreatedAt = s.now()
	if err := ValidateClient(c); err != nil {
		return Client{}, err
	}
	if err := s.store.CreateClient(ctx, c); err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	s.logger(ctx).Info("client created", zap.String("client_id", string(c.ID)), zap.String("name", c.Name))
	return c, nil
}

func (s *Service) GetClient(ctx context.Context, id ClientID) (Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, search string) ([]Client, error) {
	return s.store.ListClients(ctx, search)
}

func (s *Service) UpdateClient(ctx context.Context, c Client) (Client, error) {
	existing, err := s.store.GetClient(ctx, c.ID)
	if err != nil {
		return Client{}, err
	}
	c.CreatedAt = existing.CreatedAt
	if err := ValidateClient(c); err != nil {
		return Client{}, err
	}
	if err := s.store.UpdateClient(ctx, c); err != nil {
		return Client{}, fmt.Errorf("update client: %w", err)
	}
	return c, nil
}

// DeleteClient removes the client with all its projects, invoices and payments.
func (s *Service) DeleteClient(ctx context.Context, id ClientID) error {
	if err := s.store.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.logger(ctx).Warn("client deleted with cascade", zap.String("client_id", string(id)))
	return nil
}

// =============================================================================
// PROJECTS
// =============================================================================

func (s *Service) CreateProject(ctx context.Context, p Project) (ProjectRow, error) {
	if _, err := s.store.GetClient(ctx, p.ClientID); err != nil {
		return ProjectRow{}, err
	}
	p.ID = ProjectID(s.newID())
	p.CreatedAt = s.now()
	p.Normalize()
	if err := ValidateProject(p); err != nil {
		return ProjectRow{}, err
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return ProjectRow{}, fmt.Errorf("create project: %w", err)
	}
	s.logger(ctx).Info("project created",
		zap.String("project_id", string(p.ID)),
		zap.String("client_id", string(p.ClientID)))
	return s.store.GetProject(ctx, p.ID)
}

func (s *Service) GetProject(ctx context.Context, id ProjectID) (ProjectRow, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]ProjectRow, error) {
	return s.store.QueryProjects(ctx, filter)
}

func (s *Service) UpdateProject(ctx context.Context, p Project) (ProjectRow, error) {
	existing, err := s.store.GetProject(ctx, p.ID)
	if err != nil {
		return ProjectRow{}, err
	}
	if p.ClientID != existing.ClientID {
		if _, err := s.store.GetClient(ctx, p.ClientID); err != nil {
			return ProjectRow{}, err
		}
	}
	p.CreatedAt = existing.CreatedAt
	p.Normalize()
	if err := ValidateProject(p); err != nil {
		return ProjectRow{}, err
	}
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return ProjectRow{}, fmt.Errorf("update project: %w", err)
	}
	return s.store.GetProject(ctx, p.ID)
}

// DeleteProject removes the project with all its invoices and payments.
func (s *Service) DeleteProject(ctx context.Context, id ProjectID) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger(ctx).Warn("project deleted with cascade", zap.String("project_id", string(id)))
	return nil
}

// ProjectReport is a project with its invoices and their totals.
type ProjectReport struct {
	Project    ProjectRow       `json:"project"`
	Financials Financials       `json:"financials"`
	Breakdown  ProjectBreakdown `json:"breakdown"`
	Invoices   []InvoiceView    `json:"invoices"`
}

func (s *Service) ProjectFinancials(ctx context.Context, id ProjectID) (ProjectReport, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return ProjectReport{}, err
	}
	rows, err := s.store.QueryInvoices(ctx, InvoiceFilter{ProjectID: id})
	if err != nil {
		return ProjectReport{}, fmt.Errorf("query invoices: %w", err)
	}
	today := s.Today()
	views := make([]InvoiceView, 0, len(rows))
	for _, r := range rows {
		views = append(views, NewInvoiceView(r, today))
	}
	return ProjectReport{
		Project:    project,
		Financials: AggregateRows(rows),
		Breakdown:  BreakdownByProject([]ProjectRow{project}, rows)[0],
		Invoices:   views,
	}, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Service) CreateInvoice(ctx context.Context, inv Invoice) (InvoiceView, error) {
	if _, err := s.store.GetProject(ctx, inv.ProjectID); err != nil {
		return InvoiceView{}, err
	}
	inv.ID = InvoiceID(s.newID())
	inv.Version = 1
	inv.CreatedAt = s.now()
	inv.UpdatedAt = inv.CreatedAt
	inv.Normalize(s.Today())
	if err := ValidateInvoice(inv); err != nil {
		return InvoiceView{}, err
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return InvoiceView{}, fmt.Errorf("create invoice: %w", err)
	}
	s.logger(ctx).Info("invoice created",
		zap.String("invoice_id", string(inv.ID)),
		zap.String("invoice_number", inv.Number))
	return s.GetInvoice(ctx, inv.ID)
}

func (s *Service) GetInvoice(ctx context.Context, id InvoiceID) (InvoiceView, error) {
	row, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceView{}, err
	}
	return NewInvoiceView(row, s.Today()), nil
}

// UpdateInvoice replaces the editable fields of an invoice. A zero Version
// means "whatever is current"; otherwise it must match the stored version.
// Status and retention settlement are owned by the workflow operations and
// are always kept from the stored row.
func (s *Service) UpdateInvoice(ctx context.Context, inv Invoice) (InvoiceView, error) {
	existing, err := s.store.GetInvoice(ctx, inv.ID)
	if err != nil {
		return InvoiceView{}, err
	}
	inv.Status = existing.Status
	inv.RetentionReleased = existing.RetentionReleased
	inv.RetentionReleasedDate = existing.RetentionReleasedDate
	inv.RetentionPaidAmount = existing.RetentionPaidAmount
	inv.LastPaymentAmount = existing.LastPaymentAmount
	if inv.ProjectID != existing.ProjectID {
		if _, err := s.store.GetProject(ctx, inv.ProjectID); err != nil {
			return InvoiceView{}, err
		}
	}
	if inv.Version == 0 {
		inv.Version = existing.Version
	}
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = s.now()
	inv.Normalize(s.Today())
	if err := ValidateInvoice(inv); err != nil {
		return InvoiceView{}, err
	}
	if _, err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return InvoiceView{}, fmt.Errorf("update invoice: %w", err)
	}
	return s.GetInvoice(ctx, inv.ID)
}

// DeleteInvoice removes the invoice and its payments.
func (s *Service) DeleteInvoice(ctx context.Context, id InvoiceID) error {
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.logger(ctx).Warn("invoice deleted with cascade", zap.String("invoice_id", string(id)))
	return nil
}

func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceView, error) {
	rows, err := s.store.QueryInvoices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	today := s.Today()
	views := make([]InvoiceView, 0, len(rows))
	for _, r := range rows {
		views = append(views, NewInvoiceView(r, today))
	}
	return views, nil
}

// InvoiceFinancials returns the derived figures of one invoice.
func (s *Service) InvoiceFinancials(ctx context.Context, id InvoiceID) (Financials, error) {
	row, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return Financials{}, err
	}
	return ComputeInvoiceFinancials(row.Invoice), nil
}

// =============================================================================
// REPORTS
// =============================================================================

// AggregateFinancials sums the financials of every invoice matching filter.
func (s *Service) AggregateFinancials(ctx context.Context, filter InvoiceFilter) (Financials, error) {
	rows, err := s.store.QueryInvoices(ctx, filter)
	if err != nil {
		return Financials{}, fmt.Errorf("query invoices: %w", err)
	}
	return AggregateRows(rows), nil
}

// Dashboard is the headline report with its breakdowns.
type Dashboard struct {
	Summary  Summary            `json:"summary"`
	Projects []ProjectBreakdown `json:"projects"`
	Monthly  []MonthlyTotal     `json:"monthly"`
	Recent   []InvoiceView      `json:"recent_invoices"`
}

const recentInvoiceCount = 5

// Dashboard builds the summary over the invoices matching filter. Projects
// are narrowed to the filter's client or project when one is set.
func (s *Service) Dashboard(ctx context.Context, filter InvoiceFilter) (Dashboard, error) {
	rows, err := s.store.QueryInvoices(ctx, filter)
	if err != nil {
		return Dashboard{}, fmt.Errorf("query invoices: %w", err)
	}
	projects, err := s.store.QueryProjects(ctx, ProjectFilter{ClientID: filter.ClientID})
	if err != nil {
		return Dashboard{}, fmt.Errorf("query projects: %w", err)
	}
	if filter.ProjectID != "" {
		kept := projects[:0]
		for _, p := range projects {
			if p.ID == filter.ProjectID {
				kept = append(kept, p)
			}
		}
		projects = kept
	}

	plain := make([]Project, 0, len(projects))
	for _, p := range projects {
		plain = append(plain, p.Project)
	}

	today := s.Today()
	recent := make([]InvoiceView, 0, recentInvoiceCount)
	for i := 0; i < len(rows) && i < recentInvoiceCount; i++ {
		recent = append(recent, NewInvoiceView(rows[i], today))
	}

	summary := Summarize(rows, plain, today)
	if filter.ClientID == "" && filter.ProjectID == "" {
		// Unscoped: clients without projects count too.
		clients, err := s.store.ListClients(ctx, "")
		if err != nil {
			return Dashboard{}, fmt.Errorf("list clients: %w", err)
		}
		summary.ClientCount = len(clients)
	}

	return Dashboard{
		Summary:  summary,
		Projects: BreakdownByProject(projects, rows),
		Monthly:  MonthlySeries(rows),
		Recent:   recent,
	}, nil
}

// OverdueReport lists overdue invoices and overdue retention as of today.
func (s *Service) OverdueReport(ctx context.Context) (OverdueReport, error) {
	rows, err := s.store.QueryInvoices(ctx, InvoiceFilter{Status: StatusPending})
	if err != nil {
		return OverdueReport{}, fmt.Errorf("query invoices: %w", err)
	}
	// Retention can be held on invoices already marked Paid.
	paid, err := s.store.QueryInvoices(ctx, InvoiceFilter{Status: StatusPaid})
	if err != nil {
		return OverdueReport{}, fmt.Errorf("query invoices: %w", err)
	}
	return BuildOverdueReport(append(rows, paid...), s.Today()), nil
}

// SearchResults groups global search hits by kind.
type SearchResults struct {
	Query    string        `json:"query"`
	Clients  []Client      `json:"clients"`
	Projects []ProjectRow  `json:"projects"`
	Invoices []InvoiceView `json:"invoices"`
}

// Search finds clients, projects and invoices containing q. An empty query
// matches nothing.
func (s *Service) Search(ctx context.Context, q string) (SearchResults, error) {
	q = strings.TrimSpace(q)
	res := SearchResults{Query: q, Clients: []Client{}, Projects: []ProjectRow{}, Invoices: []InvoiceView{}}
	if q == "" {
		return res, nil
	}
	var err error
	if res.Clients, err = s.store.ListClients(ctx, q); err != nil {
		return SearchResults{}, fmt.Errorf("search clients: %w", err)
	}
	if res.Projects, err = s.store.QueryProjects(ctx, ProjectFilter{Search: q}); err != nil {
		return SearchResults{}, fmt.Errorf("search projects: %w", err)
	}
	if res.Invoices, err = s.ListInvoices(ctx, InvoiceFilter{Search: q}); err != nil {
		return SearchResults{}, err
	}
	return res, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Service) Settings(ctx context.Context) (CompanySettings, error) {
	if s.settings == nil {
		return DefaultSettings(), nil
	}
	return s.settings.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, cs CompanySettings) (CompanySettings, error) {
	if s.settings == nil {
		return CompanySettings{}, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if strings.TrimSpace(cs.InvoicePrefix) == "" {
		cs.InvoicePrefix = DefaultInvoicePrefix
	}
	cs.UpdatedAt = s.now()
	if err := ValidateSettings(cs); err != nil {
		return CompanySettings{}, err
	}
	if err := s.settings.SaveSettings(ctx, cs); err != nil {
		return CompanySettings{}, fmt.Errorf("save settings: %w", err)
	}
	return cs, nil
}

// NextInvoiceNumber suggests "<prefix>-<NNNN>", one past the highest number
// already issued with the configured prefix.
func (s *Service) NextInvoiceNumber(ctx context.Context) (string, error) {
	cs, err := s.Settings(ctx)
	if err != nil {
		return "", err
	}
	prefix := cs.InvoicePrefix + "-"
	rows, err := s.store.QueryInvoices(ctx, InvoiceFilter{Search: prefix})
	if err != nil {
		return "", fmt.Errorf("query invoices: %w", err)
	}
	highest := 0
	for _, r := range rows {
		if !strings.HasPrefix(r.Number, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(r.Number, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, highest+1), nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes every record. Used by demo scenarios.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if inv, ok := s.settings.(interface{ Invalidate(context.Context) }); ok {
		inv.Invalidate(ctx)
	}
	s.logger(ctx).Warn("ledger reset")
	return nil
}

// sortPaymentsOldestFirst orders by payment date, then by creation time.
func sortPaymentsOldestFirst(ps []Payment) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].Date.Equal(ps[j].Date) {
			return ps[i].Date.Before(ps[j].Date)
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}
