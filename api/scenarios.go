/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	dashboard data: clients, work orders with rate lines, projects, weekly
	planned and actual hours, and invoices.

AVAILABLE SCENARIOS (scenarios/*.yaml):

	steady-burn:  One PO billed monthly, senior rate line, actual overrides
	overrun:      Accrued work already past the PO value
	portfolio:    Active, pipeline and closed POs plus unlinked internal hours

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Decode the embedded YAML file
 3. Validate and save every record into the request's sector

RELATIVE DATES:

	Hours and invoices name months relative to the current month (0 is this
	month, -1 last month). Hours also name weeks 1-4, which map to the
	Fridays of that month, so a scenario always shows recent history and a
	forward forecast.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "steady-burn"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Record endpoints
  - loader/validate.go: Record validation
*/
package api

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/loader"
	"github.com/warp/burn-engine/store/sqlite"
)

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	Clients      []nameRecord    `yaml:"clients"`
	Employees    []employeeSeed  `yaml:"employees"`
	WorkOrders   []workOrderSeed `yaml:"work_orders"`
	RateLines    []rateLineSeed  `yaml:"rate_lines"`
	Projects     []projectSeed   `yaml:"projects"`
	PlannedHours []hoursSeed     `yaml:"planned_hours"`
	Timesheets   []hoursSeed     `yaml:"timesheets"`
	Invoices     []invoiceSeed   `yaml:"invoices"`
}

type nameRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type employeeSeed struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

type workOrderSeed struct {
	ID       string `yaml:"id"`
	ClientID string `yaml:"client_id"`
	Name     string `yaml:"name"`
	Budget   string `yaml:"budget"`
	Status   string `yaml:"status"`
}

type rateLineSeed struct {
	ID          string `yaml:"id"`
	WorkOrderID string `yaml:"work_order_id"`
	Label       string `yaml:"label"`
	BillRate    string `yaml:"bill_rate"`
	Default     bool   `yaml:"default"`
	SortOrder   int    `yaml:"sort_order"`
}

type projectSeed struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	ClientID    string `yaml:"client_id"`
	WorkOrderID string `yaml:"work_order_id"`
}

// hoursSeed expands to one record per (month, week) pair.
type hoursSeed struct {
	Employee string `yaml:"employee"`
	Project  string `yaml:"project"`
	Months   []int  `yaml:"months"`
	Weeks    []int  `yaml:"weeks"`
	Hours    string `yaml:"hours"`
	RateLine string `yaml:"rate_line"`
}

type invoiceSeed struct {
	ID       string `yaml:"id"`
	ClientID string `yaml:"client_id"`
	Number   string `yaml:"number"`
	Amount   string `yaml:"amount"`
	Status   string `yaml:"status"`
	Month    int    `yaml:"month"`
}

// loadScenarios decodes every embedded scenario, ordered by file name.
func loadScenarios() ([]scenario, error) {
	entries, err := fs.ReadDir(scenarioFiles, "scenarios")
	if err != nil {
		return nil, err
	}

	out := make([]scenario, 0, len(entries))
	for _, e := range entries {
		data, err := scenarioFiles.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, err
		}
		var sc scenario
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", e.Name(), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func findScenario(id string) (*scenario, error) {
	all, err := loadScenarios()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all, err := loadScenarios()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}

	dtos := make([]ScenarioDTO, 0, len(all))
	for _, sc := range all {
		dtos = append(dtos, ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	sc, err := findScenario(current)
	if err != nil || sc == nil {
		writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: sc.ID, Name: sc.Name, Description: sc.Description})
}

// LoadScenario resets the database and loads a predefined scenario into the
// request's sector.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sc, err := findScenario(req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	if sc == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	sector := h.sector(r)
	if err := h.seed(ctx, sector, sc); err != nil {
		writeStoreError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = sc.ID
	h.Logger.Info("Scenario loaded", zap.String("scenario", sc.ID), zap.String("sector_id", sector))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": sc.ID})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) seed(ctx context.Context, sector string, sc *scenario) error {
	month := accrual.MonthOf(h.now())

	for _, c := range sc.Clients {
		if err := h.Store.SaveClient(ctx, sector, sqlite.Client{ID: c.ID, Name: c.Name}); err != nil {
			return err
		}
	}
	for _, e := range sc.Employees {
		emp := sqlite.Employee{ID: e.ID, Name: e.Name, Email: e.Email, Role: e.Role}
		if err := h.Store.SaveEmployee(ctx, sector, emp); err != nil {
			return err
		}
	}

	for _, s := range sc.WorkOrders {
		budget, err := decimal.NewFromString(s.Budget)
		if err != nil {
			return fmt.Errorf("work order %s budget: %w", s.ID, err)
		}
		wo := accrual.WorkOrder{
			ID:       accrual.WorkOrderID(s.ID),
			ClientID: accrual.ClientID(s.ClientID),
			Name:     s.Name,
			Budget:   budget,
			Status:   accrual.WorkOrderStatus(s.Status),
		}
		if err := loader.ValidateWorkOrder(wo); err != nil {
			return err
		}
		if err := h.Store.SaveWorkOrder(ctx, sector, wo); err != nil {
			return err
		}
	}

	for _, s := range sc.RateLines {
		rate, err := decimal.NewFromString(s.BillRate)
		if err != nil {
			return fmt.Errorf("rate line %s bill_rate: %w", s.ID, err)
		}
		rl := accrual.RateLine{
			ID:          accrual.RateLineID(s.ID),
			WorkOrderID: accrual.WorkOrderID(s.WorkOrderID),
			Label:       s.Label,
			BillRate:    rate,
			IsDefault:   s.Default,
			SortOrder:   s.SortOrder,
		}
		if err := loader.ValidateRateLine(rl); err != nil {
			return err
		}
		if err := h.Store.SaveRateLine(ctx, sector, rl); err != nil {
			return err
		}
	}

	for _, s := range sc.Projects {
		p := loader.Project{
			ID:          accrual.ProjectID(s.ID),
			Name:        s.Name,
			ClientID:    accrual.ClientID(s.ClientID),
			WorkOrderID: accrual.WorkOrderID(s.WorkOrderID),
		}
		if err := loader.ValidateProject(p); err != nil {
			return err
		}
		if err := h.Store.SaveProject(ctx, sector, p); err != nil {
			return err
		}
	}

	for _, s := range sc.PlannedHours {
		hours, err := decimal.NewFromString(s.Hours)
		if err != nil {
			return fmt.Errorf("planned hours for %s: %w", s.Employee, err)
		}
		for _, week := range s.weekEndings(month) {
			p := accrual.PlannedHours{
				EmployeeID: accrual.EmployeeID(s.Employee),
				ProjectID:  accrual.ProjectID(s.Project),
				WeekEnding: week,
				Hours:      hours,
				RateLineID: accrual.RateLineID(s.RateLine),
			}
			if err := loader.ValidatePlannedHours(p); err != nil {
				return err
			}
			if err := h.Store.SavePlannedHours(ctx, sector, p); err != nil {
				return err
			}
		}
	}

	for _, s := range sc.Timesheets {
		hours, err := decimal.NewFromString(s.Hours)
		if err != nil {
			return fmt.Errorf("timesheet for %s: %w", s.Employee, err)
		}
		for _, week := range s.weekEndings(month) {
			ts := accrual.Timesheet{
				EmployeeID: accrual.EmployeeID(s.Employee),
				ProjectID:  accrual.ProjectID(s.Project),
				WeekEnding: week,
				Hours:      hours,
			}
			if err := loader.ValidateTimesheet(ts); err != nil {
				return err
			}
			if err := h.Store.SaveTimesheet(ctx, sector, ts); err != nil {
				return err
			}
		}
	}

	for _, s := range sc.Invoices {
		amount, err := decimal.NewFromString(s.Amount)
		if err != nil {
			return fmt.Errorf("invoice %s amount: %w", s.ID, err)
		}
		inv := accrual.Invoice{
			ID:           accrual.InvoiceID(s.ID),
			ClientID:     accrual.ClientID(s.ClientID),
			Number:       s.Number,
			Amount:       amount,
			Status:       accrual.InvoiceStatus(s.Status),
			BillingMonth: month.AddMonths(s.Month).Start(),
		}
		if err := loader.ValidateInvoice(inv); err != nil {
			return err
		}
		if err := h.Store.SaveInvoice(ctx, sector, inv); err != nil {
			return err
		}
	}
	return nil
}

// weekEndings maps relative months and week numbers to Friday dates.
// Week 1 is the first Friday of the month.
func (s hoursSeed) weekEndings(current accrual.MonthKey) []time.Time {
	var out []time.Time
	for _, m := range s.Months {
		start := current.AddMonths(m).Start()
		first := start.AddDate(0, 0, (int(time.Friday)-int(start.Weekday())+7)%7)
		for _, w := range s.Weeks {
			out = append(out, first.AddDate(0, 0, 7*(w-1)))
		}
	}
	return out
}
