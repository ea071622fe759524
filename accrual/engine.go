package accrual

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE - Metrics for every work order
// =============================================================================

// ComputeWorkOrderMetrics derives the burn picture of each work order from
// already-loaded, sector-scoped collections. Hours whose WorkOrderID is empty
// or unknown contribute to no work order. A zero asOf means now.
//
// The result is in workOrders order. Inputs are not modified.
func ComputeWorkOrderMetrics(
	workOrders []WorkOrder,
	rateLines []RateLine,
	plannedHours []PlannedHours,
	timesheets []Timesheet,
	invoices []Invoice,
	asOf time.Time,
) []WorkOrderMetrics {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	rates := NewRateBook(rateLines)

	plannedByWO := make(map[WorkOrderID][]PlannedHours)
	for _, p := range plannedHours {
		if p.WorkOrderID == "" {
			continue
		}
		plannedByWO[p.WorkOrderID] = append(plannedByWO[p.WorkOrderID], p)
	}
	actualByWO := make(map[WorkOrderID][]Timesheet)
	for _, ts := range timesheets {
		if ts.WorkOrderID == "" {
			continue
		}
		actualByWO[ts.WorkOrderID] = append(actualByWO[ts.WorkOrderID], ts)
	}

	result := make([]WorkOrderMetrics, 0, len(workOrders))
	for _, wo := range workOrders {
		accrued := AccrueWorkOrder(wo.ID, plannedByWO[wo.ID], actualByWO[wo.ID], rates, asOf)
		invoiced := AggregateInvoices(InvoicesFor(wo, invoices))
		burn := ProjectBurn(BurnInput{
			POValue:         wo.Budget,
			InvoicedTotal:   invoiced.Total,
			AccruedTotal:    accrued.Total,
			InvoicedByMonth: invoiced.ByMonth,
			AccruedByMonth:  accrued.ByMonth,
			AsOf:            asOf,
		})

		result = append(result, WorkOrderMetrics{
			WorkOrderID:      wo.ID,
			ClientID:         wo.ClientID,
			Status:           wo.Status,
			POValue:          wo.Budget,
			InvoicedTotal:    invoiced.Total,
			AccruedTotal:     accrued.Total,
			Remaining:        burn.Remaining,
			Variance:         invoiced.Total.Sub(accrued.Total),
			MonthlyBurn:      burn.MonthlyBurn,
			MonthsRemaining:  burn.MonthsRemaining,
			BurnPct:          burn.BurnPct,
			Overrun:          burn.Remaining.IsNegative(),
			ForecastTotal:    accrued.Forecast,
			ForecastByMonth:  accrued.ForecastBy,
			RunOutMonth:      burn.RunOutMonth,
			MonthlyBreakdown: Breakdown(accrued.ByMonth, invoiced.ByMonth),
		})
	}
	return result
}

// Breakdown merges accrued and invoiced months into ascending rows. A month
// present on only one side reads zero on the other.
func Breakdown(accrued, invoiced map[MonthKey]decimal.Decimal) []MonthRow {
	months := make(map[MonthKey]struct{}, len(accrued)+len(invoiced))
	for m := range accrued {
		months[m] = struct{}{}
	}
	for m := range invoiced {
		months[m] = struct{}{}
	}

	keys := make([]MonthKey, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]MonthRow, 0, len(keys))
	for _, m := range keys {
		a, inv := accrued[m], invoiced[m]
		rows = append(rows, MonthRow{
			Month:    m,
			Accrued:  a,
			Invoiced: inv,
			Variance: inv.Sub(a),
		})
	}
	return rows
}

// Rollup sums the sector-wide totals over work orders with a positive PO
// value. Work orders without a PO carry no burn signal.
func Rollup(metrics []WorkOrderMetrics) PortfolioTotals {
	t := PortfolioTotals{
		POValue:       decimal.Zero,
		InvoicedTotal: decimal.Zero,
		AccruedTotal:  decimal.Zero,
		Remaining:     decimal.Zero,
		Variance:      decimal.Zero,
	}
	for _, m := range metrics {
		if !m.POValue.IsPositive() {
			continue
		}
		t.WorkOrders++
		t.POValue = t.POValue.Add(m.POValue)
		t.InvoicedTotal = t.InvoicedTotal.Add(m.InvoicedTotal)
		t.AccruedTotal = t.AccruedTotal.Add(m.AccruedTotal)
		t.Remaining = t.Remaining.Add(m.Remaining)
		t.Variance = t.Variance.Add(m.Variance)
	}
	return t
}

// FilterByStatus keeps metrics whose work order has the given status.
// An empty status keeps everything.
func FilterByStatus(metrics []WorkOrderMetrics, status WorkOrderStatus) []WorkOrderMetrics {
	if status == "" {
		return metrics
	}
	out := make([]WorkOrderMetrics, 0, len(metrics))
	for _, m := range metrics {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}
