/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine and store types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts, hours and rates travel as decimal strings ("1234.50") so no
  precision is lost in JSON. Dates are "YYYY-MM-DD", months "YYYY-MM".

VALIDATION:
  Validation is done in handlers and loader.Validate*, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - accrual/types.go: Engine types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/burn-engine/accrual"
	"github.com/warp/burn-engine/store/sqlite"
)

const dateLayout = "2006-01-02"

// =============================================================================
// DIRECTORY
// =============================================================================

type ClientDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EmployeeDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// =============================================================================
// WORK ORDERS
// =============================================================================

type WorkOrderDTO struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"client_id"`
	Name      string          `json:"name,omitempty"`
	Budget    decimal.Decimal `json:"budget"`
	Status    string          `json:"status"`
	StartDate string          `json:"start_date,omitempty"`
	EndDate   string          `json:"end_date,omitempty"`
}

type RateLineDTO struct {
	ID          string          `json:"id"`
	WorkOrderID string          `json:"work_order_id"`
	Label       string          `json:"label"`
	BillRate    decimal.Decimal `json:"bill_rate"`
	IsDefault   bool            `json:"is_default"`
	SortOrder   int             `json:"sort_order"`
}

type ProjectDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ClientID    string `json:"client_id,omitempty"`
	WorkOrderID string `json:"work_order_id,omitempty"`
}

// =============================================================================
// HOURS & INVOICES
// =============================================================================

type PlannedHoursDTO struct {
	EmployeeID   string          `json:"employee_id"`
	ProjectID    string          `json:"project_id"`
	WeekEnding   string          `json:"week_ending"`
	PlannedHours decimal.Decimal `json:"planned_hours"`
	RateLineID   string          `json:"rate_line_id,omitempty"`
}

type TimesheetDTO struct {
	EmployeeID string          `json:"employee_id"`
	ProjectID  string          `json:"project_id"`
	WeekEnding string          `json:"week_ending"`
	Hours      decimal.Decimal `json:"hours"`
}

type InvoiceDTO struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	Number       string          `json:"number,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	BillingMonth string          `json:"billing_month"`
}

// =============================================================================
// PO TRACKER
// =============================================================================

type MonthRowDTO struct {
	Month    string          `json:"month"`
	Accrued  decimal.Decimal `json:"accrued"`
	Invoiced decimal.Decimal `json:"invoiced"`
	Variance decimal.Decimal `json:"variance"`
}

// WorkOrderMetricsDTO is one row of the PO tracker.
type WorkOrderMetricsDTO struct {
	WorkOrderID      string                     `json:"work_order_id"`
	ClientID         string                     `json:"client_id"`
	Status           string                     `json:"status"`
	POValue          decimal.Decimal            `json:"po_value"`
	InvoicedTotal    decimal.Decimal            `json:"invoiced_total"`
	AccruedTotal     decimal.Decimal            `json:"accrued_total"`
	Remaining        decimal.Decimal            `json:"remaining"`
	Variance         decimal.Decimal            `json:"variance"`
	MonthlyBurn      decimal.Decimal            `json:"monthly_burn"`
	MonthsRemaining  *decimal.Decimal           `json:"months_remaining"`
	BurnPct          decimal.Decimal            `json:"burn_pct"`
	Overrun          bool                       `json:"overrun"`
	ForecastTotal    decimal.Decimal            `json:"forecast_total"`
	ForecastByMonth  map[string]decimal.Decimal `json:"forecast_by_month"`
	RunOutMonth      *string                    `json:"run_out_month"`
	MonthlyBreakdown []MonthRowDTO              `json:"monthly_breakdown"`
}

type PortfolioDTO struct {
	AsOf          string          `json:"as_of"`
	WorkOrders    int             `json:"work_orders"`
	POValue       decimal.Decimal `json:"po_value"`
	InvoicedTotal decimal.Decimal `json:"invoiced_total"`
	AccruedTotal  decimal.Decimal `json:"accrued_total"`
	Remaining     decimal.Decimal `json:"remaining"`
	Variance      decimal.Decimal `json:"variance"`
}

type POTrackerResponse struct {
	SectorID   string                `json:"sector_id"`
	AsOf       string                `json:"as_of"`
	WorkOrders []WorkOrderMetricsDTO `json:"work_orders"`
}

type SnapshotDTO struct {
	ID              string           `json:"id"`
	WorkOrderID     string           `json:"work_order_id"`
	Month           string           `json:"month"`
	POValue         decimal.Decimal  `json:"po_value"`
	InvoicedTotal   decimal.Decimal  `json:"invoiced_total"`
	AccruedTotal    decimal.Decimal  `json:"accrued_total"`
	Remaining       decimal.Decimal  `json:"remaining"`
	Variance        decimal.Decimal  `json:"variance"`
	MonthlyBurn     decimal.Decimal  `json:"monthly_burn"`
	MonthsRemaining *decimal.Decimal `json:"months_remaining"`
	BurnPct         decimal.Decimal  `json:"burn_pct"`
	CreatedAt       string           `json:"created_at"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWorkOrderDTO(wo accrual.WorkOrder) WorkOrderDTO {
	return WorkOrderDTO{
		ID:        string(wo.ID),
		ClientID:  string(wo.ClientID),
		Name:      wo.Name,
		Budget:    wo.Budget,
		Status:    string(wo.Status),
		StartDate: formatDate(wo.StartDate),
		EndDate:   formatDate(wo.EndDate),
	}
}

func (d WorkOrderDTO) toWorkOrder() (accrual.WorkOrder, error) {
	start, err := parseOptionalDate(d.StartDate)
	if err != nil {
		return accrual.WorkOrder{}, err
	}
	end, err := parseOptionalDate(d.EndDate)
	if err != nil {
		return accrual.WorkOrder{}, err
	}
	status := accrual.WorkOrderStatus(d.Status)
	if status == "" {
		status = accrual.WorkOrderActive
	}
	return accrual.WorkOrder{
		ID:        accrual.WorkOrderID(d.ID),
		ClientID:  accrual.ClientID(d.ClientID),
		Name:      d.Name,
		Budget:    d.Budget,
		Status:    status,
		StartDate: start,
		EndDate:   end,
	}, nil
}

func toRateLineDTO(rl accrual.RateLine) RateLineDTO {
	return RateLineDTO{
		ID:          string(rl.ID),
		WorkOrderID: string(rl.WorkOrderID),
		Label:       rl.Label,
		BillRate:    rl.BillRate,
		IsDefault:   rl.IsDefault,
		SortOrder:   rl.SortOrder,
	}
}

func toPlannedHoursDTO(p accrual.PlannedHours) PlannedHoursDTO {
	return PlannedHoursDTO{
		EmployeeID:   string(p.EmployeeID),
		ProjectID:    string(p.ProjectID),
		WeekEnding:   p.WeekEnding.Format(dateLayout),
		PlannedHours: p.Hours,
		RateLineID:   string(p.RateLineID),
	}
}

func toTimesheetDTO(ts accrual.Timesheet) TimesheetDTO {
	return TimesheetDTO{
		EmployeeID: string(ts.EmployeeID),
		ProjectID:  string(ts.ProjectID),
		WeekEnding: ts.WeekEnding.Format(dateLayout),
		Hours:      ts.Hours,
	}
}

func toInvoiceDTO(inv accrual.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:           string(inv.ID),
		ClientID:     string(inv.ClientID),
		Number:       inv.Number,
		Amount:       inv.Amount,
		Status:       string(inv.Status),
		BillingMonth: inv.BillingMonth.Format(dateLayout),
	}
}

func toMetricsDTO(m accrual.WorkOrderMetrics) WorkOrderMetricsDTO {
	rows := make([]MonthRowDTO, len(m.MonthlyBreakdown))
	for i, r := range m.MonthlyBreakdown {
		rows[i] = MonthRowDTO{
			Month:    string(r.Month),
			Accrued:  r.Accrued,
			Invoiced: r.Invoiced,
			Variance: r.Variance,
		}
	}
	forecast := make(map[string]decimal.Decimal, len(m.ForecastByMonth))
	for k, v := range m.ForecastByMonth {
		forecast[string(k)] = v
	}
	var runOut *string
	if m.RunOutMonth != nil {
		s := string(*m.RunOutMonth)
		runOut = &s
	}
	return WorkOrderMetricsDTO{
		WorkOrderID:      string(m.WorkOrderID),
		ClientID:         string(m.ClientID),
		Status:           string(m.Status),
		POValue:          m.POValue,
		InvoicedTotal:    m.InvoicedTotal,
		AccruedTotal:     m.AccruedTotal,
		Remaining:        m.Remaining,
		Variance:         m.Variance,
		MonthlyBurn:      m.MonthlyBurn,
		MonthsRemaining:  m.MonthsRemaining,
		BurnPct:          m.BurnPct,
		Overrun:          m.Overrun,
		ForecastTotal:    m.ForecastTotal,
		ForecastByMonth:  forecast,
		RunOutMonth:      runOut,
		MonthlyBreakdown: rows,
	}
}

func toSnapshotDTO(s sqlite.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:              s.ID,
		WorkOrderID:     string(s.WorkOrderID),
		Month:           string(s.Month),
		POValue:         s.POValue,
		InvoicedTotal:   s.InvoicedTotal,
		AccruedTotal:    s.AccruedTotal,
		Remaining:       s.Remaining,
		Variance:        s.Variance,
		MonthlyBurn:     s.MonthlyBurn,
		MonthsRemaining: s.MonthsRemaining,
		BurnPct:         s.BurnPct,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
