package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/billing-ledger/ledger"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement, unlocked. Store wraps it with the mutex
// and txStore runs it on an open transaction.
type queries struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// CLIENTS
// =============================================================================

const clientColumns = `id, name, phone, email, address, gst_number, pan_number, contact_person, created_at`

func (q *queries) createClient(ctx context.Context, c ledger.Client) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.GSTNumber, c.PANNumber, c.ContactPerson, stampTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func scanClient(row rowScanner) (ledger.Client, error) {
	var c ledger.Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.GSTNumber, &c.PANNumber, &c.ContactPerson, timeText{&c.CreatedAt})
	return c, err
}

func (q *queries) getClient(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	c, err := scanClient(q.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Client{}, ledger.ClientNotFound(id)
	}
	if err != nil {
		return ledger.Client{}, fmt.Errorf("failed to load client: %w", err)
	}
	return c, nil
}

func (q *queries) updateClient(ctx context.Context, c ledger.Client) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, phone = ?, email = ?, address = ?,
			gst_number = ?, pan_number = ?, contact_person = ?
		WHERE id = ?
	`, c.Name, c.Phone, c.Email, c.Address, c.GSTNumber, c.PANNumber, c.ContactPerson, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return requireAffected(res, ledger.ClientNotFound(c.ID))
}

func (q *queries) deleteClient(ctx context.Context, id ledger.ClientID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return requireAffected(res, ledger.ClientNotFound(id))
}

func (q *queries) listClients(ctx context.Context, search string) ([]ledger.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients`
	var args []any
	if strings.TrimSpace(search) != "" {
		p := likePattern(search)
		query += ` WHERE name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\' OR address LIKE ? ESCAPE '\'`
		args = append(args, p, p, p, p)
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	out := []ledger.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// PROJECTS
// =============================================================================

const projectSelect = `
	SELECT p.id, p.client_id, p.name, p.work_order_no, p.contract_amount,
	       p.retention_percent, p.gst_percent, p.start_date, p.end_date,
	       p.scope_of_work, p.project_manager, p.status, p.created_at,
	       c.name
	FROM projects p
	JOIN clients c ON c.id = p.client_id`

func (q *queries) createProject(ctx context.Context, p ledger.Project) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO projects (id, client_id, name, work_order_no, contract_amount, retention_percent,
			gst_percent, start_date, end_date, scope_of_work, project_manager, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ClientID, p.Name, p.WorkOrderNo, p.ContractAmount, p.RetentionPercent,
		p.GSTPercent, p.StartDate, p.EndDate, p.ScopeOfWork, p.ProjectManager, p.Status, stampTime(p.CreatedAt))
	if isForeignKeyError(err) {
		return ledger.ClientNotFound(p.ClientID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func scanProject(row rowScanner) (ledger.ProjectRow, error) {
	var r ledger.ProjectRow
	err := row.Scan(&r.ID, &r.ClientID, &r.Name, &r.WorkOrderNo, &r.ContractAmount,
		&r.RetentionPercent, &r.GSTPercent, &r.StartDate, &r.EndDate,
		&r.ScopeOfWork, &r.ProjectManager, &r.Status, timeText{&r.CreatedAt},
		&r.ClientName)
	return r, err
}

func (q *queries) getProject(ctx context.Context, id ledger.ProjectID) (ledger.ProjectRow, error) {
	r, err := scanProject(q.db.QueryRowContext(ctx, projectSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ProjectRow{}, ledger.ProjectNotFound(id)
	}
	if err != nil {
		return ledger.ProjectRow{}, fmt.Errorf("failed to load project: %w", err)
	}
	return r, nil
}

func (q *queries) updateProject(ctx context.Context, p ledger.Project) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE projects SET client_id = ?, name = ?, work_order_no = ?, contract_amount = ?,
			retention_percent = ?, gst_percent = ?, start_date = ?, end_date = ?,
			scope_of_work = ?, project_manager = ?, status = ?
		WHERE id = ?
	`, p.ClientID, p.Name, p.WorkOrderNo, p.ContractAmount, p.RetentionPercent, p.GSTPercent,
		p.StartDate, p.EndDate, p.ScopeOfWork, p.ProjectManager, p.Status, p.ID)
	if isForeignKeyError(err) {
		return ledger.ClientNotFound(p.ClientID)
	}
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireAffected(res, ledger.ProjectNotFound(p.ID))
}

func (q *queries) deleteProject(ctx context.Context, id ledger.ProjectID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(res, ledger.ProjectNotFound(id))
}

func (q *queries) queryProjects(ctx context.Context, f ledger.ProjectFilter) ([]ledger.ProjectRow, error) {
	var where []string
	var args []any
	if f.ClientID != "" {
		where = append(where, "p.client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, f.Status)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := likePattern(f.Search)
		where = append(where, `(p.name LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\' OR p.scope_of_work LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}

	rows, err := q.db.QueryContext(ctx, projectSelect+whereClause(where)+` ORDER BY p.rowid DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	out := []ledger.ProjectRow{}
	for rows.Next() {
		r, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, project_id, invoice_number, ra_bill_no, contract_amount, invoice_date, due_date,
	cgst_percent, sgst_percent, retention_type, retention_percent, retention_fixed_amount,
	retention_due_date, retention_released, retention_released_date, retention_paid_amount,
	tds_amount, other_deductions, paid_amount, last_payment_amount, payment_mode, payment_date,
	tds_verified, tds_verified_date, status, version, created_at, updated_at`

const invoiceSelect = `
	SELECT i.id, i.project_id, i.invoice_number, i.ra_bill_no, i.contract_amount, i.invoice_date, i.due_date,
	       i.cgst_percent, i.sgst_percent, i.retention_type, i.retention_percent, i.retention_fixed_amount,
	       i.retention_due_date, i.retention_released, i.retention_released_date, i.retention_paid_amount,
	       i.tds_amount, i.other_deductions, i.paid_amount, i.last_payment_amount, i.payment_mode, i.payment_date,
	       i.tds_verified, i.tds_verified_date, i.status, i.version, i.created_at, i.updated_at,
	       p.name, p.client_id, c.name
	FROM invoices i
	JOIN projects p ON p.id = i.project_id
	JOIN clients c ON c.id = p.client_id`

func (q *queries) createInvoice(ctx context.Context, inv ledger.Invoice) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.ProjectID, inv.Number, inv.RABillNo, inv.ContractAmount, inv.InvoiceDate, inv.DueDate,
		inv.CGSTPercent, inv.SGSTPercent, inv.RetentionType, inv.RetentionPercent, inv.RetentionFixedAmount,
		inv.RetentionDueDate, inv.RetentionReleased, inv.RetentionReleasedDate, inv.RetentionPaidAmount,
		inv.TDSAmount, inv.OtherDeductions, inv.PaidAmount, inv.LastPaymentAmount, inv.PaymentMode, inv.PaymentDate,
		inv.TDSVerified, inv.TDSVerifiedDate, inv.Status, inv.Version, stampTime(inv.CreatedAt), stampTime(inv.UpdatedAt))
	switch {
	case isUniqueConstraintError(err):
		return ledger.ErrDuplicateInvoiceNumber
	case isForeignKeyError(err):
		return ledger.ProjectNotFound(inv.ProjectID)
	case err != nil:
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func scanInvoice(row rowScanner) (ledger.InvoiceRow, error) {
	var r ledger.InvoiceRow
	err := row.Scan(&r.ID, &r.ProjectID, &r.Number, &r.RABillNo, &r.ContractAmount, &r.InvoiceDate, &r.DueDate,
		&r.CGSTPercent, &r.SGSTPercent, &r.RetentionType, &r.RetentionPercent, &r.RetentionFixedAmount,
		&r.RetentionDueDate, &r.RetentionReleased, &r.RetentionReleasedDate, &r.RetentionPaidAmount,
		&r.TDSAmount, &r.OtherDeductions, &r.PaidAmount, &r.LastPaymentAmount, &r.PaymentMode, &r.PaymentDate,
		&r.TDSVerified, &r.TDSVerifiedDate, &r.Status, &r.Version, timeText{&r.CreatedAt}, timeText{&r.UpdatedAt},
		&r.ProjectName, &r.ClientID, &r.ClientName)
	return r, err
}

func (q *queries) getInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.InvoiceRow, error) {
	r, err := scanInvoice(q.db.QueryRowContext(ctx, invoiceSelect+` WHERE i.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.InvoiceRow{}, ledger.InvoiceNotFound(id)
	}
	if err != nil {
		return ledger.InvoiceRow{}, fmt.Errorf("failed to load invoice: %w", err)
	}
	return r, nil
}

func (q *queries) updateInvoice(ctx context.Context, inv ledger.Invoice) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE invoices SET
			project_id = ?, invoice_number = ?, ra_bill_no = ?, contract_amount = ?, invoice_date = ?, due_date = ?,
			cgst_percent = ?, sgst_percent = ?, retention_type = ?, retention_percent = ?, retention_fixed_amount = ?,
			retention_due_date = ?, retention_released = ?, retention_released_date = ?, retention_paid_amount = ?,
			tds_amount = ?, other_deductions = ?, paid_amount = ?, last_payment_amount = ?, payment_mode = ?,
			payment_date = ?, tds_verified = ?, tds_verified_date = ?, status = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`, inv.ProjectID, inv.Number, inv.RABillNo, inv.ContractAmount, inv.InvoiceDate, inv.DueDate,
		inv.CGSTPercent, inv.SGSTPercent, inv.RetentionType, inv.RetentionPercent, inv.RetentionFixedAmount,
		inv.RetentionDueDate, inv.RetentionReleased, inv.RetentionReleasedDate, inv.RetentionPaidAmount,
		inv.TDSAmount, inv.OtherDeductions, inv.PaidAmount, inv.LastPaymentAmount, inv.PaymentMode,
		inv.PaymentDate, inv.TDSVerified, inv.TDSVerifiedDate, inv.Status, stampTime(inv.UpdatedAt),
		inv.ID, inv.Version)
	switch {
	case isUniqueConstraintError(err):
		return 0, ledger.ErrDuplicateInvoiceNumber
	case isForeignKeyError(err):
		return 0, ledger.ProjectNotFound(inv.ProjectID)
	case err != nil:
		return 0, fmt.Errorf("failed to update invoice: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to update invoice: %w", err)
	}
	if n == 0 {
		var count int
		if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE id = ?`, inv.ID).Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to check invoice: %w", err)
		}
		if count == 0 {
			return 0, ledger.InvoiceNotFound(inv.ID)
		}
		return 0, ledger.ErrConcurrentModification
	}
	return inv.Version + 1, nil
}

func (q *queries) deleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return requireAffected(res, ledger.InvoiceNotFound(id))
}

// queryInvoices pushes every filter into SQL. Invoice dates are ISO text,
// so range bounds compare lexically.
func (q *queries) queryInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]ledger.InvoiceRow, error) {
	var where []string
	var args []any
	if f.ProjectID != "" {
		where = append(where, "i.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.ClientID != "" {
		where = append(where, "p.client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		where = append(where, "i.status = ?")
		args = append(args, f.Status)
	}
	if !f.Range.From.IsZero() {
		where = append(where, "i.invoice_date >= ?")
		args = append(args, f.Range.From)
	}
	if !f.Range.To.IsZero() {
		where = append(where, "i.invoice_date <= ?")
		args = append(args, f.Range.To)
	}
	if strings.TrimSpace(f.Search) != "" {
		p := likePattern(f.Search)
		where = append(where, `(i.invoice_number LIKE ? ESCAPE '\' OR p.name LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}

	rows, err := q.db.QueryContext(ctx, invoiceSelect+whereClause(where)+` ORDER BY i.rowid DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	out := []ledger.InvoiceRow{}
	for rows.Next() {
		r, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS (append-only: no UPDATE or DELETE statements)
// =============================================================================

func (q *queries) appendPayment(ctx context.Context, p ledger.Payment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, amount, payment_date, payment_mode, notes, applies_to_retention, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.InvoiceID, p.Amount, p.Date, p.Mode, p.Notes, p.Retention, stampTime(p.CreatedAt))
	if isForeignKeyError(err) {
		return ledger.InvoiceNotFound(p.InvoiceID)
	}
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (q *queries) listPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.Payment, error) {
	var where []string
	var args []any
	if f.InvoiceID != "" {
		where = append(where, "invoice_id = ?")
		args = append(args, f.InvoiceID)
	}
	if !f.Range.From.IsZero() {
		where = append(where, "payment_date >= ?")
		args = append(args, f.Range.From)
	}
	if !f.Range.To.IsZero() {
		where = append(where, "payment_date <= ?")
		args = append(args, f.Range.To)
	}
	order := ` ORDER BY payment_date DESC, rowid DESC`
	if f.OldestFirst {
		order = ` ORDER BY payment_date ASC, rowid ASC`
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, invoice_id, amount, payment_date, payment_mode, notes, applies_to_retention, created_at
		FROM payments`+whereClause(where)+order, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	out := []ledger.Payment{}
	for rows.Next() {
		var p ledger.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Date, &p.Mode, &p.Notes, &p.Retention, timeText{&p.CreatedAt}); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
