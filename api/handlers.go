/*
handlers.go - HTTP API handlers for the PO burn dashboard

PURPOSE:
  Exposes the sector's dashboard records and the burn engine via REST API.
  Handles HTTP request/response and JSON serialization, and delegates to the
  store (records), the loader (sector-scoped reads) and the accrual engine.

ENDPOINTS:
  Directory:
    GET    /api/clients                       List clients
    POST   /api/clients                       Create client
    GET    /api/employees                     List employees
    POST   /api/employees                     Create employee

  Work orders:
    GET    /api/work-orders                   List work orders
    POST   /api/work-orders                   Create or update work order
    GET    /api/work-orders/{id}              Get work order
    DELETE /api/work-orders/{id}              Delete work order (and its rate lines)
    GET    /api/work-orders/{id}/rate-lines   List rate lines
    POST   /api/work-orders/{id}/rate-lines   Add rate line

  Inputs:
    GET/POST /api/projects
    GET/POST /api/planned-hours
    GET/POST /api/timesheets
    GET/POST /api/invoices

  PO tracker:
    GET    /api/po-tracker?as_of=&status=     Metrics for every work order
    GET    /api/po-tracker/rollup?as_of=      Portfolio totals (PO > 0 only)
    GET    /api/po-tracker/{id}?as_of=        One work order's metrics
    GET    /api/po-tracker/{id}/snapshots     Stored month-end snapshots

SECTOR SCOPING:
  Every request is scoped to the sector in the X-Sector-ID header, or to the
  configured default sector when the header is absent.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
	"github.com/warp/burn-engine/store/sqlite"
)

// SectorHeader names the request header carrying the sector id.
const SectorHeader = "X-Sector-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	Loader        *loader.Loader
	DefaultSector string
	Logger        *zap.Logger

	now func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store *sqlite.Store, defaultSector string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:         store,
		Loader:        loader.New(store),
		DefaultSector: defaultSector,
		Logger:        logger,
		now:           time.Now,
	}
}

func (h *Handler) sector(r *http.Request) string {
	if id := r.Header.Get(SectorHeader); id != "" {
		return id
	}
	return h.DefaultSector
}

// =============================================================================
// CLIENT & EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, ClientDTO{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Client name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := h.Store.SaveClient(r.Context(), h.sector(r), sqlite.Client{ID: req.ID, Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		dtos = append(dtos, EmployeeDTO{ID: e.ID, Name: e.Name, Email: e.Email, Role: e.Role})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req EmployeeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Employee name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	emp := sqlite.Employee{ID: req.ID, Name: req.Name, Email: req.Email, Role: req.Role}
	if err := h.Store.SaveEmployee(r.Context(), h.sector(r), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// WORK ORDER HANDLERS
// =============================================================================

func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	workOrders, err := h.Store.ListWorkOrders(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list work orders", err)
		return
	}

	dtos := make([]WorkOrderDTO, 0, len(workOrders))
	for _, wo := range workOrders {
		dtos = append(dtos, toWorkOrderDTO(wo))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorkOrder returns a single work order.
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := accrual.WorkOrderID(chi.URLParam(r, "id"))

	wo, err := h.Store.GetWorkOrder(r.Context(), h.sector(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get work order", err)
		return
	}
	if wo == nil {
		writeError(w, http.StatusNotFound, "Work order not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderDTO(*wo))
}

// CreateWorkOrder creates a work order, or updates it when the id exists.
func (h *Handler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req WorkOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	wo, err := req.toWorkOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if err := loader.ValidateWorkOrder(wo); err != nil {
		writeStoreError(w, "Invalid work order", err)
		return
	}

	if err := h.Store.SaveWorkOrder(r.Context(), h.sector(r), wo); err != nil {
		writeStoreError(w, "Failed to save work order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkOrderDTO(wo))
}

// DeleteWorkOrder removes a work order. Its rate lines go with it and
// projects that pointed at it become unlinked.
func (h *Handler) DeleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	id := accrual.WorkOrderID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteWorkOrder(r.Context(), h.sector(r), id); err != nil {
		writeStoreError(w, "Failed to delete work order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

func (h *Handler) ListRateLines(w http.ResponseWriter, r *http.Request) {
	id := accrual.WorkOrderID(chi.URLParam(r, "id"))

	lines, err := h.Store.ListRateLinesByWorkOrder(r.Context(), h.sector(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate lines", err)
		return
	}

	dtos := make([]RateLineDTO, 0, len(lines))
	for _, rl := range lines {
		dtos = append(dtos, toRateLineDTO(rl))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRateLine(w http.ResponseWriter, r *http.Request) {
	var req RateLineDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.WorkOrderID = chi.URLParam(r, "id")

	rl := accrual.RateLine{
		ID:          accrual.RateLineID(req.ID),
		WorkOrderID: accrual.WorkOrderID(req.WorkOrderID),
		Label:       req.Label,
		BillRate:    req.BillRate,
		IsDefault:   req.IsDefault,
		SortOrder:   req.SortOrder,
	}
	if err := loader.ValidateRateLine(rl); err != nil {
		writeStoreError(w, "Invalid rate line", err)
		return
	}

	if err := h.Store.SaveRateLine(r.Context(), h.sector(r), rl); err != nil {
		writeStoreError(w, "Failed to save rate line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateLineDTO(rl))
}

// =============================================================================
// PROJECT, HOURS & INVOICE HANDLERS
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, 0, len(projects))
	for _, p := range projects {
		dtos = append(dtos, ProjectDTO{
			ID:          string(p.ID),
			Name:        p.Name,
			ClientID:    string(p.ClientID),
			WorkOrderID: string(p.WorkOrderID),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	p := loader.Project{
		ID:          accrual.ProjectID(req.ID),
		Name:        req.Name,
		ClientID:    accrual.ClientID(req.ClientID),
		WorkOrderID: accrual.WorkOrderID(req.WorkOrderID),
	}
	if err := loader.ValidateProject(p); err != nil {
		writeStoreError(w, "Invalid project", err)
		return
	}

	if err := h.Store.SaveProject(r.Context(), h.sector(r), p); err != nil {
		writeStoreError(w, "Failed to save project", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) ListPlannedHours(w http.ResponseWriter, r *http.Request) {
	planned, err := h.Store.ListPlannedHours(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list planned hours", err)
		return
	}

	dtos := make([]PlannedHoursDTO, 0, len(planned))
	for _, p := range planned {
		dtos = append(dtos, toPlannedHoursDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SavePlannedHours upserts one planned-hours cell (employee, project, week).
func (h *Handler) SavePlannedHours(w http.ResponseWriter, r *http.Request) {
	var req PlannedHoursDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	week, err := time.Parse(dateLayout, req.WeekEnding)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_ending format (use YYYY-MM-DD)", err)
		return
	}

	p := accrual.PlannedHours{
		EmployeeID: accrual.EmployeeID(req.EmployeeID),
		ProjectID:  accrual.ProjectID(req.ProjectID),
		WeekEnding: week,
		Hours:      req.PlannedHours,
		RateLineID: accrual.RateLineID(req.RateLineID),
	}
	if err := loader.ValidatePlannedHours(p); err != nil {
		writeStoreError(w, "Invalid planned hours", err)
		return
	}

	if err := h.Store.SavePlannedHours(r.Context(), h.sector(r), p); err != nil {
		writeStoreError(w, "Failed to save planned hours", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlannedHoursDTO(p))
}

func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	timesheets, err := h.Store.ListTimesheets(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list timesheets", err)
		return
	}

	dtos := make([]TimesheetDTO, 0, len(timesheets))
	for _, ts := range timesheets {
		dtos = append(dtos, toTimesheetDTO(ts))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveTimesheet upserts one timesheet cell (employee, project, week).
func (h *Handler) SaveTimesheet(w http.ResponseWriter, r *http.Request) {
	var req TimesheetDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	week, err := time.Parse(dateLayout, req.WeekEnding)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week_ending format (use YYYY-MM-DD)", err)
		return
	}

	ts := accrual.Timesheet{
		EmployeeID: accrual.EmployeeID(req.EmployeeID),
		ProjectID:  accrual.ProjectID(req.ProjectID),
		WeekEnding: week,
		Hours:      req.Hours,
	}
	if err := loader.ValidateTimesheet(ts); err != nil {
		writeStoreError(w, "Invalid timesheet", err)
		return
	}

	if err := h.Store.SaveTimesheet(r.Context(), h.sector(r), ts); err != nil {
		writeStoreError(w, "Failed to save timesheet", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimesheetDTO(ts))
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Store.ListInvoices(r.Context(), h.sector(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	billingMonth, err := time.Parse(dateLayout, req.BillingMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid billing_month format (use YYYY-MM-01)", err)
		return
	}

	inv := accrual.Invoice{
		ID:           accrual.InvoiceID(req.ID),
		ClientID:     accrual.ClientID(req.ClientID),
		Number:       req.Number,
		Amount:       req.Amount,
		Status:       accrual.InvoiceStatus(req.Status),
		BillingMonth: billingMonth,
	}
	if err := loader.ValidateInvoice(inv); err != nil {
		writeStoreError(w, "Invalid invoice", err)
		return
	}

	if err := h.Store.SaveInvoice(r.Context(), h.sector(r), inv); err != nil {
		writeStoreError(w, "Failed to save invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// =============================================================================
// PO TRACKER HANDLERS
// =============================================================================

// GetPOTracker computes metrics for every work order in the sector.
func (h *Handler) GetPOTracker(w http.ResponseWriter, r *http.Request) {
	asOf, metrics, ok := h.computeMetrics(w, r)
	if !ok {
		return
	}

	dtos := make([]WorkOrderMetricsDTO, 0, len(metrics))
	for _, m := range metrics {
		dtos = append(dtos, toMetricsDTO(m))
	}
	writeJSON(w, http.StatusOK, POTrackerResponse{
		SectorID:   h.sector(r),
		AsOf:       asOf.Format(dateLayout),
		WorkOrders: dtos,
	})
}

// GetPortfolio returns the totals across work orders with a PO value.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	asOf, metrics, ok := h.computeMetrics(w, r)
	if !ok {
		return
	}

	totals := accrual.Rollup(metrics)
	writeJSON(w, http.StatusOK, PortfolioDTO{
		AsOf:          asOf.Format(dateLayout),
		WorkOrders:    totals.WorkOrders,
		POValue:       totals.POValue,
		InvoicedTotal: totals.InvoicedTotal,
		AccruedTotal:  totals.AccruedTotal,
		Remaining:     totals.Remaining,
		Variance:      totals.Variance,
	})
}

// GetWorkOrderMetrics computes metrics for a single work order.
func (h *Handler) GetWorkOrderMetrics(w http.ResponseWriter, r *http.Request) {
	id := accrual.WorkOrderID(chi.URLParam(r, "id"))
	asOf, err := h.parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	ds, err := h.Loader.Load(r.Context(), h.sector(r))
	if err != nil {
		h.Logger.Error("failed to load sector", zap.String("sector_id", h.sector(r)), zap.Error(err))
		writeStoreError(w, "Failed to load sector data", err)
		return
	}
	if _, found := ds.WorkOrder(id); !found {
		writeError(w, http.StatusNotFound, "Work order not found", nil)
		return
	}

	metrics := ds.Only(id).Compute(asOf)
	writeJSON(w, http.StatusOK, toMetricsDTO(metrics[0]))
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id := accrual.WorkOrderID(chi.URLParam(r, "id"))

	snaps, err := h.Store.ListSnapshots(r.Context(), h.sector(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, 0, len(snaps))
	for _, s := range snaps {
		dtos = append(dtos, toSnapshotDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// computeMetrics loads the request's sector and runs the engine, applying
// the as_of and status query parameters. It writes the error response
// itself and reports false on failure.
func (h *Handler) computeMetrics(w http.ResponseWriter, r *http.Request) (time.Time, []accrual.WorkOrderMetrics, bool) {
	asOf, err := h.parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return asOf, nil, false
	}

	status := accrual.WorkOrderStatus(r.URL.Query().Get("status"))
	switch status {
	case "", accrual.WorkOrderActive, accrual.WorkOrderPipeline, accrual.WorkOrderClosed:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status (use active, pipeline or closed)", nil)
		return asOf, nil, false
	}

	ds, err := h.Loader.Load(r.Context(), h.sector(r))
	if err != nil {
		h.Logger.Error("failed to load sector", zap.String("sector_id", h.sector(r)), zap.Error(err))
		writeStoreError(w, "Failed to load sector data", err)
		return asOf, nil, false
	}

	metrics := ds.Compute(asOf)
	if status != "" {
		metrics = accrual.FilterByStatus(metrics, status)
	}
	return asOf, metrics, true
}

// parseAsOf reads the as_of query parameter, defaulting to today (UTC).
func (h *Handler) parseAsOf(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return h.now().UTC(), nil
	}
	return time.Parse(dateLayout, v)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeStoreError picks the status from the error: caller mistakes are 400,
// missing references 404, anything else 500.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case loader.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, loader.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
