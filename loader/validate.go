package loader

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/burn-engine/accrual"
)

// Records are validated before they are stored so the engine can assume
// well-formed numbers and dates. Field rules live in the validate tags of
// the record types; only cross-field and calendar rules are checked here.

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Decimals are compared by value so gte=0 rejects negatives.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func ValidateWorkOrder(wo accrual.WorkOrder) error {
	if err := check("work order", wo); err != nil {
		return err
	}
	if wo.StartDate != nil && wo.EndDate != nil && wo.EndDate.Before(*wo.StartDate) {
		return &ValidationError{Record: "work order", Field: "end_date", Reason: "is before start_date"}
	}
	return nil
}

func ValidateRateLine(rl accrual.RateLine) error {
	return check("rate line", rl)
}

func ValidateProject(p Project) error {
	return check("project", p)
}

func ValidatePlannedHours(p accrual.PlannedHours) error {
	return check("planned hours", p)
}

func ValidateTimesheet(ts accrual.Timesheet) error {
	return check("timesheet", ts)
}

func ValidateInvoice(inv accrual.Invoice) error {
	if err := check("invoice", inv); err != nil {
		return err
	}
	if inv.BillingMonth.Day() != 1 {
		return &ValidationError{Record: "invoice", Field: "billing_month", Reason: "must be the first of a month"}
	}
	return nil
}

// check runs the struct's validate tags and reports the first failure.
func check(record string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return &ValidationError{Record: record, Field: snakeCase(fe.Field()), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		if fe.Param() == "0" {
			return "must not be negative"
		}
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag()
	}
}

// snakeCase turns a Go field name into its wire name: WorkOrderID -> work_order_id.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
