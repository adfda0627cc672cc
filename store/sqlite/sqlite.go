/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists clients, projects, invoices, payments and the company settings
  singleton. Only invoice inputs are stored: tax, retention, certified,
  received and balance figures are recomputed by the ledger package on
  every read, so no SQL here evaluates a financial formula.

INTERFACES IMPLEMENTED:
  ledger.TxStore:       CRUD, queries, WithTx, Reset
  ledger.SettingsStore: Company settings (upsert on read)

MONEY AS TEXT:
  Amounts and percents are stored as exact decimal text and scanned back
  through Money / decimal.Decimal. Never REAL: binary floats would break
  to-the-cent reproducibility.

OPTIMISTIC LOCKING:
  UpdateInvoice is a compare-and-swap:

    UPDATE invoices SET ..., version = version + 1
    WHERE id = ? AND version = ?

  Zero rows affected means either the invoice is gone (NotFound) or a
  concurrent writer bumped the version (ErrConcurrentModification).

CASCADE:
  Foreign keys are declared ON DELETE CASCADE and the connection enables
  them (_foreign_keys=on), so deleting a client removes its projects,
  invoices and payments in one statement.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus a single pooled connection, so
  an in-memory database is shared by every caller. Transactions begin
  IMMEDIATE (_txlock=immediate) and take the write lock up front.

MIGRATION:
  Schema lives in migrations/*.sql, embedded in the binary and applied
  with golang-migrate on New(). See migrate.go.

USAGE:
  store, err := sqlite.New("./data/ledger.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  *queries
}

var _ ledger.TxStore = (*Store)(nil)
var _ ledger.SettingsStore = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := NewMigrator(db, log).Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated database handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, q: &queries{db: db}}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (s *Store) CreateClient(ctx context.Context, c ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createClient(ctx, c)
}

func (s *Store) GetClient(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getClient(ctx, id)
}

func (s *Store) UpdateClient(ctx context.Context, c ledger.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateClient(ctx, c)
}

func (s *Store) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteClient(ctx, id)
}

func (s *Store) ListClients(ctx context.Context, search string) ([]ledger.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listClients(ctx, search)
}

func (s *Store) CreateProject(ctx context.Context, p ledger.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createProject(ctx, p)
}

func (s *Store) GetProject(ctx context.Context, id ledger.ProjectID) (ledger.ProjectRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getProject(ctx, id)
}

func (s *Store) UpdateProject(ctx context.Context, p ledger.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateProject(ctx, p)
}

func (s *Store) DeleteProject(ctx context.Context, id ledger.ProjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteProject(ctx, id)
}

func (s *Store) QueryProjects(ctx context.Context, f ledger.ProjectFilter) ([]ledger.ProjectRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.queryProjects(ctx, f)
}

func (s *Store) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.createInvoice(ctx, inv)
}

func (s *Store) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getInvoice(ctx, id)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv ledger.Invoice) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.updateInvoice(ctx, inv)
}

func (s *Store) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.deleteInvoice(ctx, id)
}

func (s *Store) QueryInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]ledger.InvoiceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.queryInvoices(ctx, f)
}

func (s *Store) AppendPayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.appendPayment(ctx, p)
}

func (s *Store) ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.listPayments(ctx, f)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. fn's Store runs every
// statement on the transaction; returning an error rolls all of them back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: &queries{db: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset deletes every record, settings included.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{"payments", "invoices", "projects", "clients", "company_settings"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// txStore is the ledger.Store handed to WithTx callbacks.
type txStore struct {
	q *queries
}

func (ts *txStore) CreateClient(ctx context.Context, c ledger.Client) error {
	return ts.q.createClient(ctx, c)
}
func (ts *txStore) GetClient(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	return ts.q.getClient(ctx, id)
}
func (ts *txStore) UpdateClient(ctx context.Context, c ledger.Client) error {
	return ts.q.updateClient(ctx, c)
}
func (ts *txStore) DeleteClient(ctx context.Context, id ledger.ClientID) error {
	return ts.q.deleteClient(ctx, id)
}
func (ts *txStore) ListClients(ctx context.Context, search string) ([]ledger.Client, error) {
	return ts.q.listClients(ctx, search)
}
func (ts *txStore) CreateProject(ctx context.Context, p ledger.Project) error {
	return ts.q.createProject(ctx, p)
}
func (ts *txStore) GetProject(ctx context.Context, id ledger.ProjectID) (ledger.ProjectRow, error) {
	return ts.q.getProject(ctx, id)
}
func (ts *txStore) UpdateProject(ctx context.Context, p ledger.Project) error {
	return ts.q.updateProject(ctx, p)
}
func (ts *txStore) DeleteProject(ctx context.Context, id ledger.ProjectID) error {
	return ts.q.deleteProject(ctx, id)
}
func (ts *txStore) QueryProjects(ctx context.Context, f ledger.ProjectFilter) ([]ledger.ProjectRow, error) {
	return ts.q.queryProjects(ctx, f)
}
func (ts *txStore) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	return ts.q.createInvoice(ctx, inv)
}
func (ts *txStore) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	return ts.q.getInvoice(ctx, id)
}
func (ts *txStore) UpdateInvoice(ctx context.Context, inv ledger.Invoice) (int64, error) {
	return ts.q.updateInvoice(ctx, inv)
}
func (ts *txStore) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	return ts.q.deleteInvoice(ctx, id)
}
func (ts *txStore) QueryInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]ledger.InvoiceRow, error) {
	return ts.q.queryInvoices(ctx, f)
}
func (ts *txStore) AppendPayment(ctx context.Context, p ledger.Payment) error {
	return ts.q.appendPayment(ctx, p)
}
func (ts *txStore) ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	return ts.q.listPayments(ctx, f)
}

// =============================================================================
// SETTINGS STORE (ledger.SettingsStore interface)
// =============================================================================

// GetSettings returns the singleton row, inserting the defaults first if
// the table is empty.
func (s *Store) GetSettings(ctx context.Context) (ledger.CompanySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := ledger.DefaultSettings()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO company_settings (id, invoice_prefix, invoice_footer) VALUES (1, ?, ?)`,
		def.InvoicePrefix, def.InvoiceFooter,
	); err != nil {
		return ledger.CompanySettings{}, fmt.Errorf("failed to create settings: %w", err)
	}

	var cs ledger.CompanySettings
	err := s.db.QueryRowContext(ctx, `
		SELECT company_name, email, phone, address, invoice_prefix, invoice_footer, updated_at
		FROM company_settings WHERE id = 1
	`).Scan(&cs.CompanyName, &cs.Email, &cs.Phone, &cs.Address, &cs.InvoicePrefix, &cs.InvoiceFooter, timeText{&cs.UpdatedAt})
	if err != nil {
		return ledger.CompanySettings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return cs, nil
}

func (s *Store) SaveSettings(ctx context.Context, cs ledger.CompanySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_settings (id, company_name, email, phone, address, invoice_prefix, invoice_footer, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_name = excluded.company_name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			invoice_prefix = excluded.invoice_prefix,
			invoice_footer = excluded.invoice_footer,
			updated_at = excluded.updated_at
	`, cs.CompanyName, cs.Email, cs.Phone, cs.Address, cs.InvoicePrefix, cs.InvoiceFooter, formatTime(cs.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// stampTime formats a value for a NOT NULL timestamp column; a zero time is
// recorded as the moment of the write.
func stampTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timeText scans a timestamp stored as RFC 3339 text.
type timeText struct {
	t *time.Time
}

func (tt timeText) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*tt.t = time.Time{}
		return nil
	case time.Time:
		*tt.t = v.UTC()
		return nil
	case []byte:
		return tt.Scan(string(v))
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrCorruptRecord, err)
		}
		*tt.t = parsed
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T into time", ledger.ErrCorruptRecord, value)
	}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// likePattern builds a case-insensitive substring pattern for LIKE ... ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}
