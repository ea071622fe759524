package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/burn-engine/accrual"
)

func TestSnapshotScheduler_OncePerMonth(t *testing.T) {
	// GIVEN: A sector with one work order and hours in January and February
	h, router := setupTestHandler(t)
	seedWorkOrder(t, router, "north")

	s := NewSnapshotScheduler(h.Store, "north", zap.NewNop())
	s.now = func() time.Time { return march15 }
	ctx := context.Background()

	// WHEN: The scheduler runs in March
	created, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// THEN: February's close is recorded once, even on rerun
	created, err = s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	snaps, err := h.Store.ListSnapshots(ctx, "north", "wo-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, accrual.MonthKey("2026-02"), snaps[0].Month)
	assertDec(t, "1500", snaps[0].AccruedTotal, "accrued through february")
	assertDec(t, "900", snaps[0].InvoicedTotal, "invoiced")
	require.NotNil(t, snaps[0].MonthsRemaining)

	// AND: The snapshot is served by the API for that sector only
	rec := do(t, router, http.MethodGet, "/api/po-tracker/wo-1/snapshots", nil, "north")
	require.Equal(t, http.StatusOK, rec.Code)
	dtos := decode[[]SnapshotDTO](t, rec)
	require.Len(t, dtos, 1)
	assert.Equal(t, "2026-02", dtos[0].Month)

	rec = do(t, router, http.MethodGet, "/api/po-tracker/wo-1/snapshots", nil, "south")
	assert.Empty(t, decode[[]SnapshotDTO](t, rec))
}

func TestSnapshotScheduler_NextMonthAddsSnapshot(t *testing.T) {
	h, router := setupTestHandler(t)
	seedWorkOrder(t, router, "north")

	s := NewSnapshotScheduler(h.Store, "north", zap.NewNop())
	ctx := context.Background()

	s.now = func() time.Time { return march15 }
	_, err := s.RunNow(ctx)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC) }
	created, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	snaps, err := h.Store.ListSnapshots(ctx, "north", "wo-1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, accrual.MonthKey("2026-03"), snaps[1].Month)
	assertDec(t, "2300", snaps[1].AccruedTotal, "march planned week now accrued")
}

func TestSnapshotScheduler_StartStop(t *testing.T) {
	h, _ := setupTestHandler(t)

	s := NewSnapshotScheduler(h.Store, "north", zap.NewNop())
	s.CheckInterval = time.Hour
	s.Start()
	s.Stop()
	s.Stop()

	// Restart after stop
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	disabled := NewSnapshotScheduler(h.Store, "north", zap.NewNop())
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
}

func TestSnapshotScheduler_MissingSector(t *testing.T) {
	h, _ := setupTestHandler(t)

	s := NewSnapshotScheduler(h.Store, "", zap.NewNop())
	_, err := s.RunNow(context.Background())
	assert.Error(t, err)
}
