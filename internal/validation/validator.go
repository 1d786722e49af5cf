package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// decimals compare as float64 so numeric tags (gte, gt) apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterStructValidation(verifyStructValidation, VerifyRequest{})

	return v
}

// verifyStructValidation checks total = subtotal + shipping fee (to the kobo) whenever the
// breakdown is present.
func verifyStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(VerifyRequest)
	if req.Subtotal.IsZero() && req.ShippingFee.IsZero() {
		return
	}

	sum := req.Subtotal.Add(req.ShippingFee)
	if !sum.Round(2).Equal(req.Total.Round(2)) {
		sl.ReportError(req.Total, "total", "Total", "total_match_breakdown",
			fmt.Sprintf("subtotal %s + shipping %s != total %s", req.Subtotal.StringFixed(2), req.ShippingFee.StringFixed(2), req.Total.StringFixed(2)))
	}
}

var messages = map[string]string{
	"line1.required":              "Address line 1 is required",
	"line1.min":                   "Address line 1 must be at least 8 characters",
	"stateRegion.required":        "State/Region is required",
	"state.required":              "State is required",
	"total.total_match_breakdown": "Total must equal subtotal plus shipping fee",
	"id.required":                 "Product id is required",
	"quantity.required":           "Quantity is required",
}

// FieldMessages turns validator errors into per-field, user-facing messages.
func FieldMessages(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
			out[fe.Field()] = msg
			continue
		}
		out[fe.Field()] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return out
}

// Summary joins the field messages in a stable order.
func Summary(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}
