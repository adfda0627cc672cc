/*
main.go - Application entry point

PURPOSE:
  Command-line entry point for the billing ledger. Loads configuration,
  builds the logger, store and ledger Service, and dispatches to one of
  the subcommands below.

COMMANDS:
  serve             Run the HTTP API (default when no command is given)
  migrate up        Apply pending schema migrations
  migrate down      Roll back every migration
  migrate version   Print the current schema version
  export            Write the filtered invoice list as CSV
  report dashboard  Print the dashboard summary
  report overdue    Print overdue balances and overdue retention

CONFIGURATION:
  config.toml (./ or /etc/billing-ledger), .env, and BILLING_* environment
  variables; see config/config.go. --db overrides database.path.

  Use --db=":memory:" for an in-memory SQLite database, or
  --db=":memory-store:" for the pure in-memory store (no SQLite).

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scanner
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and cache connections

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/ledger.db

  # Export this financial year
  ./server export --financial-year=2025-2026 --out=invoices.csv

  # Overdue report on the terminal
  ./server report overdue

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/cache"
	"github.com/warp/billing-ledger/config"
	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/ledger/store"
	"github.com/warp/billing-ledger/logger"
	"github.com/warp/billing-ledger/notify"
	"github.com/warp/billing-ledger/store/sqlite"
)

// memoryStoreDSN selects the pure in-memory store instead of SQLite.
const memoryStoreDSN = ":memory-store:"

var version = "dev"

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	dbPath string
	cfg    *config.Config
	log    *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "server",
		Short:         "GST invoicing and billing ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), "")
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides database.path)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newExportCmd(a),
		newReportCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	log, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	a.cfg = cfg
	a.log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// ledgerStore is what both store implementations provide.
type ledgerStore interface {
	ledger.TxStore
	ledger.SettingsStore
}

// openStore opens the configured store. The returned func releases it.
func (a *app) openStore() (ledgerStore, func(), error) {
	path := a.cfg.Database.Path
	if path == memoryStoreDSN {
		a.log.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil
	}
	st, err := sqlite.New(path, a.log.Named("sqlite"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.log.Info("database ready", zap.String("path", path))
	return st, func() {
		if err := st.Close(); err != nil {
			a.log.Error("failed to close database", zap.Error(err))
		}
	}, nil
}

// settingsCache fronts the settings singleton with Redis when enabled, or a
// process-local cache otherwise. A Redis outage at startup falls back to the
// local cache.
func (a *app) settingsCache(ctx context.Context, st ledger.SettingsStore) (*cache.SettingsCache, func()) {
	rc := a.cfg.Redis
	log := a.log.Named("settings-cache")
	if rc.Enabled {
		backend, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		if err == nil {
			log.Info("using redis", zap.String("addr", rc.Addr))
			return cache.NewSettingsCache(st, backend, rc.TTL, log), func() { _ = backend.Close() }
		}
		log.Warn("redis unavailable, using in-process cache", zap.Error(err))
	}
	return cache.NewSettingsCache(st, cache.NewMemoryBackend(), rc.TTL, log), func() {}
}

// newService builds the ledger Service over an open store.
func (a *app) newService(ctx context.Context) (*ledger.Service, func(), error) {
	st, closeStore, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	settings, closeCache := a.settingsCache(ctx, st)

	svc := ledger.NewService(st,
		ledger.WithClock(ledger.SystemClock{Location: a.cfg.Location()}),
		ledger.WithLogger(a.log.Named("ledger")),
		ledger.WithCeilingMode(a.cfg.CeilingMode()),
		ledger.WithSettingsStore(settings),
	)
	return svc, func() {
		closeCache()
		closeStore()
	}, nil
}

// deliverer picks SMTP when a mail host is configured, else the log channel.
func (a *app) deliverer() ledger.Deliverer {
	sc := a.cfg.SMTP
	if !sc.Enabled() {
		return notify.NewLogDeliverer(a.log.Named("delivery"))
	}
	return notify.NewSMTPDeliverer(notify.SMTPConfig{
		Addr:     sc.Addr(),
		Host:     sc.Host,
		Username: sc.Username,
		Password: sc.Password,
		From:     sc.From,
	}, a.log.Named("smtp"))
}

// output opens path for writing, or stdout for "" and "-".
func output(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Minute)
}
