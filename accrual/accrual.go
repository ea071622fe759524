/*
accrual.go - Accrued revenue per work order

PURPOSE:
  Values the work performed against a work order: hours times bill rate,
  bucketed by the month of the week-ending date.

TWO PASSES:
  1. Planned pass: planned-hours records are merged by (employee, project,
     week), summing hours, and each key is valued once. When a timesheet
     exists for the same (employee, project, week) its hours replace the
     planned hours, and the planned record's rate line still applies.
  2. Actual-only pass: timesheets with no planned record for their key are
     valued at the work order's default rate.

  Each (employee, project, week) is therefore counted exactly once, from
  the most accurate source available.

CUTOFF:
  Only weeks ending strictly before the first day of the as-of month accrue.
  Later weeks are valued into the forecast instead.
*/
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// Accruals is the accrual result for one work order.
type Accruals struct {
	Total      decimal.Decimal
	ByMonth    map[MonthKey]decimal.Decimal
	Forecast   decimal.Decimal
	ForecastBy map[MonthKey]decimal.Decimal
}

// AccrueWorkOrder values the planned and actual hours of one work order.
// planned and actuals must already be restricted to the work order.
func AccrueWorkOrder(wo WorkOrderID, planned []PlannedHours, actuals []Timesheet, rates *RateBook, asOf time.Time) Accruals {
	result := Accruals{
		Total:      decimal.Zero,
		ByMonth:    make(map[MonthKey]decimal.Decimal),
		Forecast:   decimal.Zero,
		ForecastBy: make(map[MonthKey]decimal.Decimal),
	}
	cutoff := StartOfMonth(asOf)

	actualHours := make(map[HoursKey]decimal.Decimal, len(actuals))
	for _, ts := range actuals {
		k := ts.Key()
		actualHours[k] = actualHours[k].Add(ts.Hours)
	}

	// Duplicate planned rows for one key are summed under the first row's
	// rate line, so a timesheet override replaces them once.
	plannedKeys := make(map[HoursKey]int, len(planned))
	merged := make([]PlannedHours, 0, len(planned))
	for _, p := range planned {
		k := p.Key()
		if i, ok := plannedKeys[k]; ok {
			merged[i].Hours = merged[i].Hours.Add(p.Hours)
			continue
		}
		plannedKeys[k] = len(merged)
		merged = append(merged, p)
	}

	for _, p := range merged {
		hours := p.Hours
		if actual, ok := actualHours[p.Key()]; ok {
			hours = actual
		}
		amount := hours.Mul(rates.Resolve(wo, p.RateLineID))
		result.add(p.WeekEnding, amount, cutoff)
	}

	defaultRate := rates.DefaultRate(wo)
	for _, ts := range actuals {
		if _, ok := plannedKeys[ts.Key()]; ok {
			continue
		}
		result.add(ts.WeekEnding, ts.Hours.Mul(defaultRate), cutoff)
	}

	return result
}

func (a *Accruals) add(weekEnding time.Time, amount decimal.Decimal, cutoff time.Time) {
	month := MonthOf(weekEnding)
	if !dateOnly(weekEnding).Before(cutoff) {
		a.Forecast = a.Forecast.Add(amount)
		a.ForecastBy[month] = a.ForecastBy[month].Add(amount)
		return
	}
	a.Total = a.Total.Add(amount)
	a.ByMonth[month] = a.ByMonth[month].Add(amount)
}
