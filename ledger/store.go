/*
store.go - Persistence interface for the billing ledger

PURPOSE:
  Defines the boundary between the workflow and the database. Stores
  persist records and narrow result sets; they never evaluate a financial
  formula. Every derived figure is recomputed from the stored fields by
  ComputeInvoiceFinancials.

KEY INTERFACES:
  Store:         CRUD and queries for clients, projects, invoices, payments
  TxStore:       Store plus atomic multi-record writes
  SettingsStore: The CompanySettings singleton (upsert on read)

CONCURRENCY:
  UpdateInvoice is an optimistic compare-and-swap on Invoice.Version. The
  caller passes the version it read; a mismatch fails with
  ErrConcurrentModification and the caller re-reads and retries.

CASCADE:
  DeleteClient removes the client's projects, their invoices and the
  invoices' payments. DeleteProject and DeleteInvoice cascade likewise.
  Confirmation of these destructive calls is the caller's job.

PAYMENTS ARE APPEND-ONLY:
  There is no UpdatePayment. A payment disappears only when its invoice is
  deleted.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev runs
  - store/sqlite/sqlite.go: SQLite with migrations

SEE ALSO:
  - service.go: The workflow that drives a TxStore
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

type ClientStore interface {
	CreateClient(ctx context.Context, c Client) error
	GetClient(ctx context.Context, id ClientID) (Client, error)
	UpdateClient(ctx context.Context, c Client) error
	// DeleteClient cascades to projects, invoices and payments.
	DeleteClient(ctx context.Context, id ClientID) error
	ListClients(ctx context.Context, search string) ([]Client, error)
}

type ProjectStore interface {
	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id ProjectID) (ProjectRow, error)
	UpdateProject(ctx context.Context, p Project) error
	// DeleteProject cascades to invoices and payments.
	DeleteProject(ctx context.Context, id ProjectID) error
	QueryProjects(ctx context.Context, filter ProjectFilter) ([]ProjectRow, error)
}

type InvoiceStore interface {
	// CreateInvoice fails with ErrDuplicateInvoiceNumber if the number is taken.
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (InvoiceRow, error)

	// UpdateInvoice writes inv if the stored version equals inv.Version and
	// stores it with Version+1. Returns the new version.
	UpdateInvoice(ctx context.Context, inv Invoice) (int64, error)

	// DeleteInvoice cascades to payments.
	DeleteInvoice(ctx context.Context, id InvoiceID) error

	// QueryInvoices returns matching rows, newest first.
	QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]InvoiceRow, error)
}

type PaymentStore interface {
	AppendPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// Store is everything the workflow reads and writes.
type Store interface {
	ClientStore
	ProjectStore
	InvoiceStore
	PaymentStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset deletes every record, settings included.
	Reset(ctx context.Context) error
}

// =============================================================================
// SETTINGS STORE - Deployment singleton
// =============================================================================

type SettingsStore interface {
	// GetSettings returns the singleton, creating it with DefaultSettings
	// on first read.
	GetSettings(ctx context.Context) (CompanySettings, error)
	SaveSettings(ctx context.Context, s CompanySettings) error
}
