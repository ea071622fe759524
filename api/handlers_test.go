/*
handlers_test.go - Tests for API handlers

Tests for:
- Record endpoints (validation, 404s, sector scoping)
- PO tracker metrics, rollup and single work order view
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/burn-engine/store/sqlite"
)

var march15 = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, "sector-test", zap.NewNop())
	h.now = func() time.Time { return march15 }
	return h, NewRouter(h, []string{"http://localhost:5173"})
}

func do(t *testing.T, router http.Handler, method, path string, body any, sector string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sector != "" {
		req.Header.Set(SectorHeader, sector)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

// seedWorkOrder creates a client, a 10000 PO with a 100/h default rate and a
// linked project through the API.
func seedWorkOrder(t *testing.T, router http.Handler, sector string) {
	t.Helper()
	steps := []struct {
		path string
		body any
	}{
		{"/api/clients", ClientDTO{ID: "client-1", Name: "Acme"}},
		{"/api/work-orders", WorkOrderDTO{ID: "wo-1", ClientID: "client-1", Budget: decimal.NewFromInt(10000), Status: "active"}},
		{"/api/work-orders/wo-1/rate-lines", RateLineDTO{ID: "rl-1", Label: "Consultant", BillRate: decimal.NewFromInt(100), IsDefault: true}},
		{"/api/projects", ProjectDTO{ID: "proj-1", Name: "Acme Ops", ClientID: "client-1", WorkOrderID: "wo-1"}},
		{"/api/planned-hours", PlannedHoursDTO{EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: "2026-01-09", PlannedHours: decimal.NewFromInt(10)}},
		{"/api/planned-hours", PlannedHoursDTO{EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: "2026-03-20", PlannedHours: decimal.NewFromInt(8)}},
		{"/api/timesheets", TimesheetDTO{EmployeeID: "emp-2", ProjectID: "proj-1", WeekEnding: "2026-02-06", Hours: decimal.NewFromInt(5)}},
		{"/api/invoices", InvoiceDTO{ID: "inv-1", ClientID: "client-1", Amount: decimal.NewFromInt(900), Status: "sent", BillingMonth: "2026-01-01"}},
	}
	for _, s := range steps {
		rec := do(t, router, http.MethodPost, s.path, s.body, sector)
		require.Equal(t, http.StatusCreated, rec.Code, "%s: %s", s.path, rec.Body.String())
	}
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

func TestCreateWorkOrder_ValidatesAndRoundTrips(t *testing.T) {
	_, router := setupTestHandler(t)

	// GIVEN: A work order with a negative budget
	rec := do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ID: "wo-bad", ClientID: "c", Budget: decimal.NewFromInt(-5), Status: "active"}, "")
	// THEN: It is rejected as a client error
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "budget")

	// WHEN: A valid work order without an id is posted
	rec = do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ClientID: "c", Name: "Support", Budget: decimal.RequireFromString("1250.50"), StartDate: "2026-01-01"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[WorkOrderDTO](t, rec)

	// THEN: An id is generated, status defaults to active, and it reads back
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "active", created.Status)

	rec = do(t, router, http.MethodGet, "/api/work-orders/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[WorkOrderDTO](t, rec)
	assertDec(t, "1250.50", got.Budget, "budget")
	assert.Equal(t, "2026-01-01", got.StartDate)

	rec = do(t, router, http.MethodGet, "/api/work-orders/wo-missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRateLine_UnknownWorkOrder(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/work-orders/wo-ghost/rate-lines",
		RateLineDTO{Label: "Consultant", BillRate: decimal.NewFromInt(100), IsDefault: true}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestInputs_RejectBadDates(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/timesheets",
		TimesheetDTO{EmployeeID: "e", ProjectID: "p", WeekEnding: "09/01/2026", Hours: decimal.NewFromInt(8)}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/invoices",
		InvoiceDTO{ClientID: "c", Amount: decimal.NewFromInt(1), Status: "sent", BillingMonth: "2026-01-15"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "billing month must be the first of the month")
}

func TestDeleteWorkOrder(t *testing.T) {
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "")

	rec := do(t, router, http.MethodDelete, "/api/work-orders/wo-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/work-orders/wo-1/rate-lines", nil, "")
	assert.Empty(t, decode[[]RateLineDTO](t, rec), "rate lines go with the work order")

	rec = do(t, router, http.MethodGet, "/api/projects", nil, "")
	projects := decode[[]ProjectDTO](t, rec)
	require.Len(t, projects, 1)
	assert.Empty(t, projects[0].WorkOrderID, "project is unlinked, not deleted")

	rec = do(t, router, http.MethodDelete, "/api/work-orders/wo-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSectorHeader_ScopesRecords(t *testing.T) {
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "north")

	rec := do(t, router, http.MethodGet, "/api/work-orders", nil, "north")
	assert.Len(t, decode[[]WorkOrderDTO](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/work-orders", nil, "south")
	assert.Empty(t, decode[[]WorkOrderDTO](t, rec))

	rec = do(t, router, http.MethodGet, "/api/work-orders", nil, "")
	assert.Empty(t, decode[[]WorkOrderDTO](t, rec), "default sector is separate")
}

func TestSectorHeader_WritesDoNotCrossSectors(t *testing.T) {
	// GIVEN: North holds wo-1 with 10h planned in January
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "north")

	// WHEN: South writes the same work order id and hours key
	rec := do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ID: "wo-1", ClientID: "client-1", Budget: decimal.NewFromInt(1), Status: "closed"}, "south")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/planned-hours",
		PlannedHoursDTO{EmployeeID: "emp-1", ProjectID: "proj-1", WeekEnding: "2026-01-09", PlannedHours: decimal.NewFromInt(500)}, "south")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: North's PO and accrual are unchanged
	rec = do(t, router, http.MethodGet, "/api/po-tracker", nil, "north")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[POTrackerResponse](t, rec)
	require.Len(t, resp.WorkOrders, 1)
	m := resp.WorkOrders[0]
	assert.Equal(t, "active", m.Status)
	assertDec(t, "10000", m.POValue, "north po")
	assertDec(t, "1500", m.AccruedTotal, "north accrued")

	// AND: South sees only its own closed work order
	rec = do(t, router, http.MethodGet, "/api/work-orders/wo-1", nil, "south")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[WorkOrderDTO](t, rec)
	assertDec(t, "1", got.Budget, "south budget")
	assert.Equal(t, "closed", got.Status)
}

// =============================================================================
// PO TRACKER
// =============================================================================

func TestPOTracker_ComputesMetrics(t *testing.T) {
	// GIVEN: 10h planned in January, 5h unplanned actual in February,
	// 8h planned after the cutoff and one 900 invoice in January
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "")

	// WHEN: Querying the tracker as of March 15
	rec := do(t, router, http.MethodGet, "/api/po-tracker?as_of=2026-03-15", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[POTrackerResponse](t, rec)

	// THEN: Past weeks accrue, the March week is forecast only
	assert.Equal(t, "sector-test", resp.SectorID)
	assert.Equal(t, "2026-03-15", resp.AsOf)
	require.Len(t, resp.WorkOrders, 1)
	m := resp.WorkOrders[0]
	assertDec(t, "1500", m.AccruedTotal, "accrued")
	assertDec(t, "900", m.InvoicedTotal, "invoiced")
	assertDec(t, "-600", m.Variance, "variance")
	assertDec(t, "9100", m.Remaining, "remaining")
	assertDec(t, "900", m.MonthlyBurn, "burn uses invoice months")
	assertDec(t, "0.09", m.BurnPct, "burn pct")
	assertDec(t, "800", m.ForecastTotal, "forecast")
	assertDec(t, "800", m.ForecastByMonth["2026-03"], "forecast month")
	require.NotNil(t, m.MonthsRemaining)
	require.NotNil(t, m.RunOutMonth)
	assert.Equal(t, "2027-02", *m.RunOutMonth)
	assert.False(t, m.Overrun)

	require.Len(t, m.MonthlyBreakdown, 2)
	assert.Equal(t, "2026-01", m.MonthlyBreakdown[0].Month)
	assertDec(t, "1000", m.MonthlyBreakdown[0].Accrued, "jan accrued")
	assertDec(t, "-100", m.MonthlyBreakdown[0].Variance, "jan variance")
	assertDec(t, "0", m.MonthlyBreakdown[1].Invoiced, "feb invoiced")
}

func TestPOTracker_MonthsRemainingNullWithoutBurn(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ID: "wo-idle", ClientID: "c", Budget: decimal.NewFromInt(5000), Status: "pipeline"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/po-tracker", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		WorkOrders []map[string]json.RawMessage `json:"work_orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw.WorkOrders, 1)
	assert.Equal(t, "null", string(raw.WorkOrders[0]["months_remaining"]))
	assert.Equal(t, `"5000"`, string(raw.WorkOrders[0]["remaining"]), "money travels as a string")
}

func TestPOTracker_StatusFilterAndBadParams(t *testing.T) {
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "")
	rec := do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ID: "wo-2", ClientID: "client-1", Budget: decimal.NewFromInt(1), Status: "pipeline"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/po-tracker?status=pipeline", nil, "")
	resp := decode[POTrackerResponse](t, rec)
	require.Len(t, resp.WorkOrders, 1)
	assert.Equal(t, "wo-2", resp.WorkOrders[0].WorkOrderID)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/po-tracker?status=done", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/po-tracker?as_of=yesterday", nil, "").Code)
}

func TestPOTracker_RollupSkipsZeroPO(t *testing.T) {
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "")
	rec := do(t, router, http.MethodPost, "/api/work-orders",
		WorkOrderDTO{ID: "wo-free", ClientID: "client-1", Budget: decimal.Zero, Status: "active"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/po-tracker/rollup?as_of=2026-03-15", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[PortfolioDTO](t, rec)

	assert.Equal(t, 1, totals.WorkOrders)
	assertDec(t, "10000", totals.POValue, "po value")
	assertDec(t, "1500", totals.AccruedTotal, "accrued")
	assertDec(t, "9100", totals.Remaining, "remaining")
}

func TestPOTracker_SingleWorkOrder(t *testing.T) {
	_, router := setupTestHandler(t)
	seedWorkOrder(t, router, "")

	rec := do(t, router, http.MethodGet, "/api/po-tracker/wo-1?as_of=2026-02-01", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[WorkOrderMetricsDTO](t, rec)
	assertDec(t, "1000", m.AccruedTotal, "february work is not accrued yet")

	rec = do(t, router, http.MethodGet, "/api/po-tracker/wo-ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
