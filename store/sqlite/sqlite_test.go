package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
	"github.com/warp/burn-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedWorkOrder(t *testing.T, store *sqlite.Store, sector, id, client string, budget string) {
	t.Helper()
	err := store.SaveWorkOrder(context.Background(), sector, accrual.WorkOrder{
		ID:       accrual.WorkOrderID(id),
		ClientID: accrual.ClientID(client),
		Name:     "PO " + id,
		Budget:   decimal.RequireFromString(budget),
		Status:   accrual.WorkOrderActive,
	})
	require.NoError(t, err)
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestWorkOrder_SaveGetUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := date(2026, time.January, 1)
	wo := accrual.WorkOrder{
		ID:        "wo-1",
		ClientID:  "client-1",
		Name:      "Platform build",
		Budget:    decimal.RequireFromString("125000.50"),
		Status:    accrual.WorkOrderPipeline,
		StartDate: &start,
	}
	require.NoError(t, store.SaveWorkOrder(ctx, "sector-1", wo))

	got, err := store.GetWorkOrder(ctx, "sector-1", "wo-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Budget.Equal(wo.Budget))
	assert.Equal(t, accrual.WorkOrderPipeline, got.Status)
	require.NotNil(t, got.StartDate)
	assert.True(t, got.StartDate.Equal(start))
	assert.Nil(t, got.EndDate)

	wo.Status = accrual.WorkOrderActive
	require.NoError(t, store.SaveWorkOrder(ctx, "sector-1", wo))
	got, err = store.GetWorkOrder(ctx, "sector-1", "wo-1")
	require.NoError(t, err)
	assert.Equal(t, accrual.WorkOrderActive, got.Status)
}

func TestWorkOrder_SectorScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "100")
	seedWorkOrder(t, store, "sector-2", "wo-2", "client-2", "200")

	got, err := store.GetWorkOrder(ctx, "sector-2", "wo-1")
	require.NoError(t, err)
	assert.Nil(t, got, "work order must not leak across sectors")

	list, err := store.ListWorkOrders(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, accrual.WorkOrderID("wo-1"), list[0].ID)
}

func TestSectors_SameIDsDoNotCollide(t *testing.T) {
	// GIVEN: Sector 1 holds a work order, rate line, project and hours
	store := newTestStore(t)
	ctx := context.Background()
	week := date(2026, time.January, 9)

	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "10000")
	require.NoError(t, store.SaveClient(ctx, "sector-1", sqlite.Client{ID: "client-1", Name: "Acme"}))
	require.NoError(t, store.SaveRateLine(ctx, "sector-1", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "wo-1", Label: "Standard", BillRate: decimal.NewFromInt(100), IsDefault: true,
	}))
	require.NoError(t, store.SaveProject(ctx, "sector-1", loader.Project{ID: "proj-1", Name: "Build", WorkOrderID: "wo-1"}))
	require.NoError(t, store.SavePlannedHours(ctx, "sector-1", accrual.PlannedHours{
		EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: week, Hours: decimal.NewFromInt(10),
	}))

	// WHEN: Sector 2 writes records under the same ids and hours key
	seedWorkOrder(t, store, "sector-2", "wo-1", "client-9", "1")
	require.NoError(t, store.SaveClient(ctx, "sector-2", sqlite.Client{ID: "client-1", Name: "Other"}))
	require.NoError(t, store.SaveRateLine(ctx, "sector-2", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "wo-1", Label: "Cheap", BillRate: decimal.NewFromInt(1), IsDefault: true,
	}))
	require.NoError(t, store.SaveProject(ctx, "sector-2", loader.Project{ID: "proj-1", Name: "Other", WorkOrderID: "wo-1"}))
	require.NoError(t, store.SavePlannedHours(ctx, "sector-2", accrual.PlannedHours{
		EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: week, Hours: decimal.NewFromInt(500),
	}))
	require.NoError(t, store.DeleteWorkOrder(ctx, "sector-2", "wo-1"))

	// THEN: Sector 1 is untouched
	wo, err := store.GetWorkOrder(ctx, "sector-1", "wo-1")
	require.NoError(t, err)
	require.NotNil(t, wo)
	assert.True(t, wo.Budget.Equal(decimal.NewFromInt(10000)))

	clients, err := store.ListClients(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Acme", clients[0].Name)

	lines, err := store.ListRateLines(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].BillRate.Equal(decimal.NewFromInt(100)))

	projects, err := store.ListProjects(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, accrual.WorkOrderID("wo-1"), projects[0].WorkOrderID)

	planned, err := store.ListPlannedHours(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.True(t, planned[0].Hours.Equal(decimal.NewFromInt(10)))

	// AND: Sector 2's own project was unlinked, not removed
	projects, err = store.ListProjects(ctx, "sector-2")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Empty(t, projects[0].WorkOrderID)
}

func TestRateLine_WorkOrderFromOtherSectorRejected(t *testing.T) {
	store := newTestStore(t)
	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "100")

	err := store.SaveRateLine(context.Background(), "sector-2", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "wo-1", Label: "Standard", BillRate: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, loader.ErrNotFound)
}

func TestWorkOrder_DeleteCascadesRateLines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "100")
	require.NoError(t, store.SaveRateLine(ctx, "sector-1", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "wo-1", Label: "Standard", BillRate: decimal.NewFromInt(100), IsDefault: true,
	}))

	require.NoError(t, store.DeleteWorkOrder(ctx, "sector-1", "wo-1"))

	lines, err := store.ListRateLines(ctx, "sector-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	err = store.DeleteWorkOrder(ctx, "sector-1", "wo-1")
	assert.True(t, errors.Is(err, loader.ErrNotFound))
}

func TestRateLine_UnknownWorkOrderRejected(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveRateLine(context.Background(), "sector-1", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "missing", Label: "Standard", BillRate: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, loader.ErrNotFound)
}

func TestRateLines_OrderedAndParsed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "100")

	require.NoError(t, store.SaveRateLine(ctx, "sector-1", accrual.RateLine{
		ID: "rl-b", WorkOrderID: "wo-1", Label: "Senior", BillRate: decimal.RequireFromString("210.75"), SortOrder: 2,
	}))
	require.NoError(t, store.SaveRateLine(ctx, "sector-1", accrual.RateLine{
		ID: "rl-a", WorkOrderID: "wo-1", Label: "Standard", BillRate: decimal.RequireFromString("150"), IsDefault: true, SortOrder: 1,
	}))

	lines, err := store.ListRateLinesByWorkOrder(ctx, "sector-1", "wo-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, accrual.RateLineID("rl-a"), lines[0].ID)
	assert.True(t, lines[0].IsDefault)
	assert.True(t, lines[1].BillRate.Equal(decimal.RequireFromString("210.75")))
}

func TestHours_UpsertByCompositeKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	week := date(2026, time.February, 6)

	p := accrual.PlannedHours{EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: week, Hours: decimal.NewFromInt(40)}
	require.NoError(t, store.SavePlannedHours(ctx, "sector-1", p))
	p.Hours = decimal.NewFromInt(32)
	p.RateLineID = "rl-1"
	require.NoError(t, store.SavePlannedHours(ctx, "sector-1", p))

	planned, err := store.ListPlannedHours(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.True(t, planned[0].Hours.Equal(decimal.NewFromInt(32)))
	assert.Equal(t, accrual.RateLineID("rl-1"), planned[0].RateLineID)
	assert.True(t, planned[0].WeekEnding.Equal(week))

	ts := accrual.Timesheet{EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: week, Hours: decimal.RequireFromString("35.5")}
	require.NoError(t, store.SaveTimesheet(ctx, "sector-1", ts))
	actuals, err := store.ListTimesheets(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, actuals, 1)
	assert.True(t, actuals[0].Hours.Equal(decimal.RequireFromString("35.5")))
}

func TestInvoices_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveInvoice(ctx, "sector-1", accrual.Invoice{
		ID: "inv-1", ClientID: "client-1", Number: "INV-001",
		Amount: decimal.RequireFromString("1234.56"), Status: accrual.InvoiceSent,
		BillingMonth: date(2026, time.January, 1),
	}))

	invoices, err := store.ListInvoices(ctx, "sector-1")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, accrual.InvoiceSent, invoices[0].Status)
	assert.Equal(t, accrual.MonthKey("2026-01"), accrual.MonthOf(invoices[0].BillingMonth))
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestSnapshot_OncePerMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	months := decimal.NewFromInt(4)
	snap := sqlite.Snapshot{
		ID:              "snap-1",
		WorkOrderID:     "wo-1",
		Month:           "2026-02",
		POValue:         decimal.NewFromInt(1000),
		InvoicedTotal:   decimal.NewFromInt(200),
		AccruedTotal:    decimal.NewFromInt(300),
		Remaining:       decimal.NewFromInt(800),
		Variance:        decimal.NewFromInt(-100),
		MonthlyBurn:     decimal.NewFromInt(200),
		MonthsRemaining: &months,
		BurnPct:         decimal.RequireFromString("0.2"),
	}
	require.NoError(t, store.SaveSnapshot(ctx, "sector-1", snap))

	snap.ID = "snap-2"
	assert.ErrorIs(t, store.SaveSnapshot(ctx, "sector-1", snap), sqlite.ErrSnapshotExists)

	has, err := store.HasSnapshot(ctx, "sector-1", "wo-1", "2026-02")
	require.NoError(t, err)
	assert.True(t, has)

	// Another sector closes its own wo-1 for the same month
	has, err = store.HasSnapshot(ctx, "sector-2", "wo-1", "2026-02")
	require.NoError(t, err)
	assert.False(t, has)
	snap.ID = "snap-1"
	require.NoError(t, store.SaveSnapshot(ctx, "sector-2", snap))

	snaps, err := store.ListSnapshots(ctx, "sector-1", "wo-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].MonthsRemaining)
	assert.True(t, snaps[0].MonthsRemaining.Equal(months))
}

// =============================================================================
// LOADER INTEGRATION
// =============================================================================

func TestStore_FeedsLoaderAndEngine(t *testing.T) {
	// GIVEN: A work order with a default rate, a linked project and hours in February
	// WHEN: Loading the sector and computing as of mid-March
	// THEN: February hours accrue through the project link

	store := newTestStore(t)
	ctx := context.Background()

	seedWorkOrder(t, store, "sector-1", "wo-1", "client-1", "50000")
	require.NoError(t, store.SaveRateLine(ctx, "sector-1", accrual.RateLine{
		ID: "rl-1", WorkOrderID: "wo-1", Label: "Standard", BillRate: decimal.NewFromInt(100), IsDefault: true,
	}))
	require.NoError(t, store.SaveProject(ctx, "sector-1", loader.Project{ID: "proj-1", Name: "Build", ClientID: "client-1", WorkOrderID: "wo-1"}))
	require.NoError(t, store.SavePlannedHours(ctx, "sector-1", accrual.PlannedHours{
		EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: date(2026, time.February, 6), Hours: decimal.NewFromInt(40),
	}))
	require.NoError(t, store.SaveTimesheet(ctx, "sector-1", accrual.Timesheet{
		EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: date(2026, time.February, 6), Hours: decimal.NewFromInt(30),
	}))
	require.NoError(t, store.SaveInvoice(ctx, "sector-1", accrual.Invoice{
		ID: "inv-1", ClientID: "client-1", Amount: decimal.NewFromInt(2500), Status: accrual.InvoicePaid,
		BillingMonth: date(2026, time.February, 1),
	}))

	ds, err := loader.New(store).Load(ctx, "sector-1")
	require.NoError(t, err)

	metrics := ds.Compute(date(2026, time.March, 15))
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].AccruedTotal.Equal(decimal.NewFromInt(3000)))
	assert.True(t, metrics[0].InvoicedTotal.Equal(decimal.NewFromInt(2500)))
	assert.True(t, metrics[0].Variance.Equal(decimal.NewFromInt(-500)))
}
