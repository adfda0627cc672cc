package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/billing-ledger/export"
	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/store/sqlite"
)

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	withMigrator := func(fn func(*sqlite.Migrator) error) error {
		if a.cfg.Database.Path == memoryStoreDSN {
			return errors.New("the in-memory store has no schema to migrate")
		}
		db, err := sql.Open("sqlite3", a.cfg.Database.Path+"?_foreign_keys=on")
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		return fn(sqlite.NewMigrator(db, a.log.Named("migrate")))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *sqlite.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *sqlite.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *sqlite.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

type filterFlags struct {
	projectID     string
	clientID      string
	status        string
	financialYear string
	from          string
	to            string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.projectID, "project", "", "Only invoices of this project ID")
	cmd.Flags().StringVar(&f.clientID, "client", "", "Only invoices of this client ID")
	cmd.Flags().StringVar(&f.status, "status", "", "Pending or Paid")
	cmd.Flags().StringVar(&f.financialYear, "financial-year", "", "Financial year, e.g. 2025-2026")
	cmd.Flags().StringVar(&f.from, "from", "", "Invoice date from (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Invoice date to (YYYY-MM-DD)")
}

func (f *filterFlags) filter() (ledger.InvoiceFilter, error) {
	filter := ledger.InvoiceFilter{
		ProjectID: ledger.ProjectID(f.projectID),
		ClientID:  ledger.ClientID(f.clientID),
	}
	switch status := ledger.InvoiceStatus(f.status); status {
	case "", ledger.StatusPending, ledger.StatusPaid:
		filter.Status = status
	default:
		return ledger.InvoiceFilter{}, fmt.Errorf("unknown status %q", f.status)
	}
	if f.financialYear != "" {
		rng, err := ledger.FinancialYear(f.financialYear)
		if err != nil {
			return ledger.InvoiceFilter{}, err
		}
		filter.Range = rng
	}
	from, err := ledger.ParseDate(f.from)
	if err != nil {
		return ledger.InvoiceFilter{}, err
	}
	to, err := ledger.ParseDate(f.to)
	if err != nil {
		return ledger.InvoiceFilter{}, err
	}
	if !from.IsZero() {
		filter.Range.From = from
	}
	if !to.IsZero() {
		filter.Range.To = to
	}
	return filter, nil
}

func newExportCmd(a *app) *cobra.Command {
	var (
		flags filterFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write invoices with their computed figures as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			svc, closeAll, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			invoices, err := svc.ListInvoices(ctx, filter)
			if err != nil {
				return err
			}
			w, closeOut, err := output(out)
			if err != nil {
				return err
			}
			if err := export.WriteInvoicesCSV(w, invoices); err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	return cmd
}

// =============================================================================
// REPORT
// =============================================================================

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print ledger reports",
	}

	var flags filterFlags
	dashboard := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			svc, closeAll, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			d, err := svc.Dashboard(ctx, filter)
			if err != nil {
				return err
			}
			return export.WriteDashboard(cmd.OutOrStdout(), d)
		},
	}
	flags.register(dashboard)

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "Print overdue balances and overdue retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			svc, closeAll, err := a.newService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			report, err := svc.OverdueReport(ctx)
			if err != nil {
				return err
			}
			return export.WriteOverdue(cmd.OutOrStdout(), report)
		},
	}

	cmd.AddCommand(dashboard, overdue)
	return cmd
}
