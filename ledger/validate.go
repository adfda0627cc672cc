package ledger

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITY VALIDATION - Field rules declared as struct tags
// =============================================================================

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report json names so errors match the wire format.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// Money and percents compare numerically; dates are checked by presence.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if m, ok := field.Interface().(Money); ok {
				return m.Float64()
			}
			return nil
		}, Money{})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(Date); ok {
				return d.String()
			}
			return nil
		}, Date{})

		validate = v
	})
	return validate
}

// ValidateClient checks a client before it is persisted.
func ValidateClient(c Client) error { return validateEntity("client", c) }

// ValidateProject checks a project before it is persisted.
func ValidateProject(p Project) error {
	if err := validateEntity("project", p); err != nil {
		return err
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return newFieldError("project", "end_date", "gtefield", "Must not be before start_date")
	}
	return nil
}

// ValidateInvoice checks a normalized invoice before it is persisted.
func ValidateInvoice(inv Invoice) error {
	if err := validateEntity("invoice", inv); err != nil {
		return err
	}
	if !inv.DueDate.IsZero() && inv.DueDate.Before(inv.InvoiceDate) {
		return newFieldError("invoice", "due_date", "gtefield", "Must not be before invoice_date")
	}
	return nil
}

// ValidatePayment checks a payment record before it is appended.
func ValidatePayment(p Payment) error { return validateEntity("payment", p) }

// ValidateSettings checks company settings before they are saved.
func ValidateSettings(s CompanySettings) error { return validateEntity("settings", s) }

func validateEntity(entity string, v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Entity: entity}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: validationMessage(fe),
		})
	}
	return out
}

// validationMessage returns a human-readable message for a failed rule.
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	default:
		return "Invalid value"
	}
}
