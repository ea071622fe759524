/*
scheduler.go - Automated month-end snapshot scheduler

PURPOSE:
  Periodically records each work order's burn metrics as of the close of
  the previous month, so the dashboard can show how a PO evolved even after
  hours and invoices are edited.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Computes metrics with as-of = first day of the current month, so the
    accrual cutoff lands exactly on the previous month's close
  - Skips work orders that already have a snapshot for that month
  - The unique (work_order_id, month) index makes reruns harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSnapshotScheduler(store, "sector-1", logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ListSnapshots endpoint
  - store/sqlite/sqlite.go: SaveSnapshot, HasSnapshot
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
	"github.com/warp/burn-engine/store/sqlite"
)

// SnapshotScheduler handles automated month-end snapshots.
type SnapshotScheduler struct {
	Store         *sqlite.Store
	Loader        *loader.Loader
	SectorID      string
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSnapshotScheduler creates a new scheduler for one sector.
func NewSnapshotScheduler(store *sqlite.Store, sectorID string, logger *zap.Logger) *SnapshotScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotScheduler{
		Store:         store,
		Loader:        loader.New(store),
		SectorID:      sectorID,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        logger.Named("snapshots"),
		now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *SnapshotScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("Disabled, not starting")
		return
	}

	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("Started", zap.Duration("interval", s.CheckInterval), zap.String("sector_id", s.SectorID))
}

// Stop stops the scheduler.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("Stopped")
	}
}

func (s *SnapshotScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndProcess(context.Background())

	for {
		select {
		case <-ticker.C:
			s.checkAndProcess(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate check and returns how many snapshots were
// written.
func (s *SnapshotScheduler) RunNow(ctx context.Context) (int, error) {
	return s.checkAndProcess(ctx)
}

func (s *SnapshotScheduler) checkAndProcess(ctx context.Context) (int, error) {
	asOf := accrual.StartOfMonth(s.now())
	month := accrual.MonthOf(asOf).AddMonths(-1)

	ds, err := s.Loader.Load(ctx, s.SectorID)
	if err != nil {
		s.Logger.Error("Failed to load sector", zap.String("sector_id", s.SectorID), zap.Error(err))
		return 0, err
	}

	created, skipped := 0, 0
	for _, m := range ds.Compute(asOf) {
		done, err := s.Store.HasSnapshot(ctx, s.SectorID, m.WorkOrderID, month)
		if err != nil {
			s.Logger.Error("Failed to check snapshot", zap.String("work_order_id", string(m.WorkOrderID)), zap.Error(err))
			continue
		}
		if done {
			skipped++
			continue
		}

		if err := s.save(ctx, month, m); err != nil {
			if errors.Is(err, sqlite.ErrSnapshotExists) {
				skipped++
				continue
			}
			s.Logger.Error("Failed to save snapshot", zap.String("work_order_id", string(m.WorkOrderID)), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 || skipped > 0 {
		s.Logger.Info("Completed",
			zap.String("month", month.String()),
			zap.Int("created", created),
			zap.Int("skipped", skipped))
	}
	return created, nil
}

func (s *SnapshotScheduler) save(ctx context.Context, month accrual.MonthKey, m accrual.WorkOrderMetrics) error {
	snap := sqlite.Snapshot{
		ID:              uuid.NewString(),
		WorkOrderID:     m.WorkOrderID,
		Month:           month,
		POValue:         m.POValue,
		InvoicedTotal:   m.InvoicedTotal,
		AccruedTotal:    m.AccruedTotal,
		Remaining:       m.Remaining,
		Variance:        m.Variance,
		MonthlyBurn:     m.MonthlyBurn,
		MonthsRemaining: m.MonthsRemaining,
		BurnPct:         m.BurnPct,
	}
	if err := s.Store.SaveSnapshot(ctx, s.SectorID, snap); err != nil {
		return fmt.Errorf("work order %s: %w", m.WorkOrderID, err)
	}
	return nil
}
