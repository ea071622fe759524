/*
Package accrual provides the purchase-order burn engine.

PURPOSE:
  Given a set of work orders (client purchase orders) and the records that
  describe work against them, compute how much has been accrued, how much
  has been invoiced, how much of the PO is left and how fast it is burning.
  The engine is a pure function: it reads its inputs, allocates its own
  outputs and never performs I/O.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkOrder, RateLine: the PO and its bill rates
  - PlannedHours, Timesheet: weekly hours per (employee, project, week)
  - Invoice: billed amounts attributed to a client
  - WorkOrderMetrics: the derived output per work order

DESIGN PRINCIPLES:
  1. Purity: inputs are never mutated, nothing is cached between calls
  2. Precision: all money, hours and rates use decimal.Decimal
  3. Degrade, don't fail: missing configuration yields zero or nil, never an error
  4. Tenant agnostic: inputs arrive already scoped to a sector

USAGE:
  metrics := accrual.ComputeWorkOrderMetrics(
      workOrders, rateLines, planned, timesheets, invoices, time.Now())
  totals := accrual.Rollup(metrics)

SEE ALSO:
  - rates.go: bill-rate resolution
  - accrual.go: accrued revenue aggregation
  - invoices.go: invoiced revenue aggregation
  - burn.go: burn rate and run-out projection
  - engine.go: ComputeWorkOrderMetrics
*/
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkOrderID string
type ClientID string
type RateLineID string
type ProjectID string
type EmployeeID string
type InvoiceID string

// =============================================================================
// WORK ORDER - Client purchase order
// =============================================================================

type WorkOrderStatus string

const (
	WorkOrderActive   WorkOrderStatus = "active"
	WorkOrderPipeline WorkOrderStatus = "pipeline"
	WorkOrderClosed   WorkOrderStatus = "closed"
)

// WorkOrder is a client purchase order. Budget is the PO ceiling and may be zero.
type WorkOrder struct {
	ID        WorkOrderID     `validate:"required"`
	ClientID  ClientID        `validate:"required"`
	Name      string
	Budget    decimal.Decimal `validate:"gte=0"`
	Status    WorkOrderStatus `validate:"oneof=active pipeline closed"`
	StartDate *time.Time
	EndDate   *time.Time
}

// RateLine is a named bill rate on a work order.
// At most one rate line per work order should be flagged IsDefault; the
// engine does not enforce it and takes the first default it sees.
type RateLine struct {
	ID          RateLineID      `validate:"required"`
	WorkOrderID WorkOrderID     `validate:"required"`
	Label       string
	BillRate    decimal.Decimal `validate:"gte=0"` // currency per hour
	IsDefault   bool
	SortOrder   int
}

// =============================================================================
// HOURS - Planned and actual, keyed by (employee, project, week ending)
// =============================================================================

// PlannedHours is a resource allocation for one employee on one project for
// one week. WorkOrderID is the project's work order, empty when the project
// is not linked to one.
type PlannedHours struct {
	EmployeeID  EmployeeID      `validate:"required"`
	ProjectID   ProjectID       `validate:"required"`
	WeekEnding  time.Time       `validate:"required"`
	Hours       decimal.Decimal `validate:"gte=0"`
	RateLineID  RateLineID      // empty = work order default
	WorkOrderID WorkOrderID
}

// Timesheet is the actual hours worked for one (employee, project, week).
type Timesheet struct {
	EmployeeID  EmployeeID      `validate:"required"`
	ProjectID   ProjectID       `validate:"required"`
	WeekEnding  time.Time       `validate:"required"`
	Hours       decimal.Decimal `validate:"gte=0"`
	WorkOrderID WorkOrderID
}

// HoursKey identifies one employee's week on one project.
type HoursKey struct {
	EmployeeID EmployeeID
	ProjectID  ProjectID
	WeekEnding string // YYYY-MM-DD
}

func (p PlannedHours) Key() HoursKey {
	return HoursKey{EmployeeID: p.EmployeeID, ProjectID: p.ProjectID, WeekEnding: p.WeekEnding.Format(dateLayout)}
}

func (t Timesheet) Key() HoursKey {
	return HoursKey{EmployeeID: t.EmployeeID, ProjectID: t.ProjectID, WeekEnding: t.WeekEnding.Format(dateLayout)}
}

// =============================================================================
// INVOICE
// =============================================================================

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// IsIssued reports whether the invoice is a financial commitment.
// Drafts are not.
func (s InvoiceStatus) IsIssued() bool {
	switch s {
	case InvoiceSent, InvoicePaid, InvoiceOverdue:
		return true
	default:
		return false
	}
}

type Invoice struct {
	ID           InvoiceID     `validate:"required"`
	ClientID     ClientID      `validate:"required"`
	Number       string
	Amount       decimal.Decimal
	Status       InvoiceStatus `validate:"oneof=draft sent paid overdue"`
	// BillingMonth is the first day of the billed month.
	BillingMonth time.Time `validate:"required"`
}

// =============================================================================
// OUTPUT - Derived metrics, never persisted by the engine
// =============================================================================

// MonthRow is one row of a work order's monthly breakdown.
type MonthRow struct {
	Month    MonthKey
	Accrued  decimal.Decimal
	Invoiced decimal.Decimal
	Variance decimal.Decimal // Invoiced - Accrued
}

// WorkOrderMetrics is the burn picture of one work order as of a date.
//
// Remaining may be negative (PO overrun). MonthsRemaining is nil when the
// burn rate is zero. RunOutMonth is nil unless a positive run-out can be
// projected.
type WorkOrderMetrics struct {
	WorkOrderID WorkOrderID
	ClientID    ClientID
	Status      WorkOrderStatus

	POValue         decimal.Decimal
	InvoicedTotal   decimal.Decimal
	AccruedTotal    decimal.Decimal
	Remaining       decimal.Decimal
	Variance        decimal.Decimal
	MonthlyBurn     decimal.Decimal
	MonthsRemaining *decimal.Decimal
	BurnPct         decimal.Decimal
	Overrun         bool

	ForecastTotal   decimal.Decimal
	ForecastByMonth map[MonthKey]decimal.Decimal
	RunOutMonth     *MonthKey

	MonthlyBreakdown []MonthRow
}

// PortfolioTotals sums metrics across work orders that carry a PO value.
type PortfolioTotals struct {
	WorkOrders    int
	POValue       decimal.Decimal
	InvoicedTotal decimal.Decimal
	AccruedTotal  decimal.Decimal
	Remaining     decimal.Decimal
	Variance      decimal.Decimal
}
