package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreateOrderRequest to ensure the
	// claimed totals are internally consistent before the engine sees them.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// createOrderStructValidation verifies subtotal == sum(quantity * unit price)
// and total == subtotal + tax + shipping. Integer minor units, no tolerance.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum int64
	for _, it := range req.Items {
		sum += int64(it.Quantity) * it.UnitPriceCents
	}
	if sum != req.SubtotalCents {
		sl.ReportError(req.SubtotalCents, "subtotal_cents", "SubtotalCents", "subtotal_match_items", "")
	}
	if req.SubtotalCents+req.TaxCents+req.ShippingCents != req.TotalCents {
		sl.ReportError(req.TotalCents, "total_cents", "TotalCents", "total_match_components", "")
	}
}
