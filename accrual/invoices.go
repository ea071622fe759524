package accrual

import "github.com/shopspring/decimal"

// =============================================================================
// INVOICE AGGREGATION
// =============================================================================

// Invoiced is the invoice result for one work order.
type Invoiced struct {
	Total   decimal.Decimal
	ByMonth map[MonthKey]decimal.Decimal
}

// InvoicesFor selects the invoices attributed to a work order.
//
// Invoices carry no work order reference, so attribution is by client: every
// issued invoice of the client counts against each of the client's work
// orders. A client with several concurrent work orders sees its invoices
// counted on all of them. This is the only place attribution is decided.
func InvoicesFor(wo WorkOrder, invoices []Invoice) []Invoice {
	var out []Invoice
	for _, inv := range invoices {
		if inv.ClientID != wo.ClientID || !inv.Status.IsIssued() {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// AggregateInvoices sums invoice amounts by billing month.
func AggregateInvoices(invoices []Invoice) Invoiced {
	result := Invoiced{
		Total:   decimal.Zero,
		ByMonth: make(map[MonthKey]decimal.Decimal),
	}
	for _, inv := range invoices {
		month := MonthOf(inv.BillingMonth)
		result.Total = result.Total.Add(inv.Amount)
		result.ByMonth[month] = result.ByMonth[month].Add(inv.Amount)
	}
	return result
}
