package accrual

import "github.com/shopspring/decimal"

// =============================================================================
// RATE RESOLUTION - Which bill rate applies to an hours record
// =============================================================================

// RateBook indexes rate lines by id and the default rate per work order.
// A work order without rate lines is not a fault: its hours resolve to zero.
type RateBook struct {
	byID     map[RateLineID]RateLine
	defaults map[WorkOrderID]RateLine
}

// NewRateBook builds the lookup tables. When several rate lines on one work
// order are flagged default, the first one wins.
func NewRateBook(lines []RateLine) *RateBook {
	rb := &RateBook{
		byID:     make(map[RateLineID]RateLine, len(lines)),
		defaults: make(map[WorkOrderID]RateLine),
	}
	for _, l := range lines {
		rb.byID[l.ID] = l
		if l.IsDefault {
			if _, seen := rb.defaults[l.WorkOrderID]; !seen {
				rb.defaults[l.WorkOrderID] = l
			}
		}
	}
	return rb
}

// Resolve returns the bill rate for hours on the given work order.
// An explicit, known rate line id wins; otherwise the work order's default
// applies; otherwise the rate is zero.
func (rb *RateBook) Resolve(workOrderID WorkOrderID, rateLineID RateLineID) decimal.Decimal {
	if rateLineID != "" {
		if l, ok := rb.byID[rateLineID]; ok {
			return l.BillRate
		}
	}
	return rb.DefaultRate(workOrderID)
}

// DefaultRate returns the work order's default bill rate, or zero.
func (rb *RateBook) DefaultRate(workOrderID WorkOrderID) decimal.Decimal {
	if l, ok := rb.defaults[workOrderID]; ok {
		return l.BillRate
	}
	return decimal.Zero
}
