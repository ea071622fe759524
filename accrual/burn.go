/*
burn.go - Burn rate and run-out projection

PURPOSE:
  Estimates how fast a PO is being consumed and how many months are left.

PRECEDENCE:
  Billing cadence is what actually consumes a PO, so the burn rate is the
  average invoiced amount per invoiced month. Before the first invoice the
  average accrued amount per accrued month stands in. With neither, the
  burn rate is zero and no run-out is projected.

EXAMPLE:
  Invoices in 2 months totalling 20,000 and accruals in 4 months totalling
  30,000 give a burn of 10,000/month, not 7,500.
*/
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// Burn is the burn projection for one work order.
type Burn struct {
	MonthlyBurn     decimal.Decimal
	Remaining       decimal.Decimal
	MonthsRemaining *decimal.Decimal
	BurnPct         decimal.Decimal
	RunOutMonth     *MonthKey
}

// BurnInput carries the totals a projection needs.
type BurnInput struct {
	POValue         decimal.Decimal
	InvoicedTotal   decimal.Decimal
	AccruedTotal    decimal.Decimal
	InvoicedByMonth map[MonthKey]decimal.Decimal
	AccruedByMonth  map[MonthKey]decimal.Decimal
	AsOf            time.Time
}

// ProjectBurn computes burn rate, remaining PO, months remaining and burn
// percentage. MonthsRemaining is nil whenever the burn rate is zero.
func ProjectBurn(in BurnInput) Burn {
	b := Burn{
		MonthlyBurn: decimal.Zero,
		Remaining:   in.POValue.Sub(in.InvoicedTotal),
		BurnPct:     decimal.Zero,
	}

	if n := nonZeroMonths(in.InvoicedByMonth); n > 0 {
		b.MonthlyBurn = in.InvoicedTotal.Div(decimal.NewFromInt(int64(n)))
	} else if n := nonZeroMonths(in.AccruedByMonth); n > 0 {
		b.MonthlyBurn = in.AccruedTotal.Div(decimal.NewFromInt(int64(n)))
	}

	if b.MonthlyBurn.IsPositive() {
		months := b.Remaining.Div(b.MonthlyBurn)
		b.MonthsRemaining = &months
		if months.IsPositive() {
			whole := int(months.Ceil().IntPart())
			runOut := MonthOf(in.AsOf).AddMonths(whole)
			b.RunOutMonth = &runOut
		}
	}

	if in.POValue.IsPositive() {
		b.BurnPct = in.InvoicedTotal.Div(in.POValue)
	}
	return b
}

func nonZeroMonths(byMonth map[MonthKey]decimal.Decimal) int {
	n := 0
	for _, v := range byMonth {
		if !v.IsZero() {
			n++
		}
	}
	return n
}
