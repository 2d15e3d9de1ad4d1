package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a validator reporting json field names, with the
// cross-field rules of the request types registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(itemStructValidation, ItemRequest{})
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(fulfillmentStructValidation, FulfillmentRequest{})

	return v
}

// itemStructValidation requires the price input that matches priceType.
func itemStructValidation(sl validatorv10.StructLevel) {
	it := sl.Current().Interface().(ItemRequest)
	switch it.PriceType {
	case "fixed":
		if it.UnitPrice <= 0 {
			sl.ReportError(it.UnitPrice, "unitPrice", "UnitPrice", "required_for_fixed", "")
		}
	case "weight-based":
		if it.Weight <= 0 {
			sl.ReportError(it.Weight, "weight", "Weight", "required_for_weight_based", "")
		}
	}
}

// createOrderStructValidation keeps taxAmount and shippingAmount together.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if (req.TaxAmount == nil) != (req.ShippingAmount == nil) {
		missing, name := "shippingAmount", "ShippingAmount"
		if req.TaxAmount == nil {
			missing, name = "taxAmount", "TaxAmount"
		}
		sl.ReportError(nil, missing, name, "charges_pair", "")
	}
}

func fulfillmentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(FulfillmentRequest)
	if req.TrackingNumber == nil && req.ShippingCarrier == nil && req.EstimatedDelivery == nil {
		sl.ReportError(nil, "trackingNumber", "TrackingNumber", "one_field_required", "")
	}
}

// fieldMessage renders a validator failure for API clients.
func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "required_for_fixed":
		return "must be greater than 0 for fixed-price items"
	case "required_for_weight_based":
		return "must be greater than 0 for weight-based items"
	case "charges_pair":
		return "taxAmount and shippingAmount must be provided together"
	case "one_field_required":
		return "at least one of trackingNumber, shippingCarrier or estimatedDelivery is required"
	}
	return fe.Error()
}
