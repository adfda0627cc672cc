/*
scheduler.go - Background overdue scanner

PURPOSE:
  Periodically scans invoices for overdue balances and overdue retention,
  logs the counts and amounts, and keeps the latest report for
  GET /api/reports/overdue.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans once immediately on start
  - Read-only: the scan never mutates invoices

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 hour)
  - Enabled: Whether the scanner runs (default: true)

USAGE:
  scanner := NewOverdueScanner(svc, logger)
  scanner.Start()
  // ... later
  scanner.Stop()

SEE ALSO:
  - ledger/aggregate.go: BuildOverdueReport
  - reports.go: GetOverdue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// OverdueScanner runs the overdue report on a ticker.
type OverdueScanner struct {
	Service       *ledger.Service
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	resultMu sync.RWMutex
	last     *ledger.OverdueReport
	lastScan time.Time
}

// NewOverdueScanner creates a new scanner.
func NewOverdueScanner(svc *ledger.Service, log *zap.Logger) *OverdueScanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverdueScanner{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log.Named("overdue-scanner"),
	}
}

// Start begins the scanner.
func (s *OverdueScanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.Info("started", zap.Duration("check_interval", s.CheckInterval))
}

// Stop stops the scanner and waits for an in-flight scan to finish.
func (s *OverdueScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info("stopped")
	}
}

func (s *OverdueScanner) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.scan(ctx)
		case <-stop:
			return
		}
	}
}

func (s *OverdueScanner) scan(ctx context.Context) {
	if _, err := s.ScanNow(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("overdue scan failed", zap.Error(err))
	}
}

// ScanNow builds the overdue report, stores it as the latest result and
// logs a summary.
func (s *OverdueScanner) ScanNow(ctx context.Context) (ledger.OverdueReport, error) {
	report, err := s.Service.OverdueReport(ctx)
	if err != nil {
		return ledger.OverdueReport{}, err
	}

	s.resultMu.Lock()
	s.last = &report
	s.lastScan = time.Now()
	s.resultMu.Unlock()

	fields := []zap.Field{
		zap.String("as_of", report.AsOf.String()),
		zap.Int("overdue_invoices", len(report.Overdue)),
		zap.String("overdue_balance", report.OverdueBalance.String()),
		zap.Int("overdue_retention", len(report.RetentionOverdue)),
		zap.String("retention_outstanding", report.RetentionOutstanding.String()),
	}
	if len(report.Overdue) > 0 || len(report.RetentionOverdue) > 0 {
		s.log.Warn("overdue invoices found", fields...)
	} else {
		s.log.Info("no overdue invoices", fields...)
	}
	return report, nil
}

// Last returns the most recent report, if any scan has completed.
func (s *OverdueScanner) Last() (ledger.OverdueReport, bool) {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	if s.last == nil {
		return ledger.OverdueReport{}, false
	}
	return *s.last, true
}

// LastScan is the wall-clock time of the most recent successful scan.
func (s *OverdueScanner) LastScan() time.Time {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.lastScan
}
