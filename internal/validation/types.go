package validation

import "time"

// AddressRequest is a postal address in a request body.
type AddressRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	Address    string `json:"address" validate:"required,max=500"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,max=30"`
}

// CustomizationRequest is optional personalisation of a line item.
type CustomizationRequest struct {
	Engraving    string `json:"engraving,omitempty" validate:"max=100"`
	Size         string `json:"size,omitempty" validate:"max=20"`
	Instructions string `json:"instructions,omitempty" validate:"max=500"`
}

// ItemRequest is one requested line item. Fixed items carry unitPrice,
// weight-based items carry weight in grams.
type ItemRequest struct {
	ProductID     string                `json:"productId" validate:"required"`
	Name          string                `json:"name" validate:"required,max=200"`
	SKU           string                `json:"sku,omitempty"`
	Category      string                `json:"category,omitempty"`
	Material      string                `json:"material,omitempty"`
	PriceType     string                `json:"priceType" validate:"required,oneof=fixed weight-based"`
	UnitPrice     float64               `json:"unitPrice" validate:"gte=0"`
	Weight        float64               `json:"weight" validate:"gte=0"`
	Quantity      int                   `json:"quantity" validate:"required,min=1,max=100"`
	Customization *CustomizationRequest `json:"customization,omitempty"`
}

// CreateOrderRequest is the payload for POST /orders. taxAmount and
// shippingAmount go together; without them the configured charges apply.
type CreateOrderRequest struct {
	Items           []ItemRequest   `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress AddressRequest  `json:"shippingAddress"`
	BillingAddress  *AddressRequest `json:"billingAddress,omitempty"`
	SameAsShipping  bool            `json:"sameAsShipping"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,oneof=COD online bank_transfer upi card"`
	TaxAmount       *float64        `json:"taxAmount,omitempty" validate:"omitempty,gte=0"`
	ShippingAmount  *float64        `json:"shippingAmount,omitempty" validate:"omitempty,gte=0"`
	DiscountAmount  float64         `json:"discountAmount" validate:"gte=0"`
	Priority        string          `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	Notes           string          `json:"notes,omitempty" validate:"max=1000"`
}

// TransitionRequest is the payload for PATCH /admin/orders/:id/status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled refunded"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// CancelRequest is the optional payload for POST /orders/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// BulkStatusRequest is the payload for POST /admin/orders/bulk-status.
type BulkStatusRequest struct {
	OrderIDs []string `json:"orderIds" validate:"required,min=1,max=100,dive,required"`
	Status   string   `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled refunded"`
	Note     string   `json:"note,omitempty" validate:"max=500"`
}

// FulfillmentRequest is the payload for PATCH /admin/orders/:id/fulfillment.
// At least one field must be present.
type FulfillmentRequest struct {
	TrackingNumber    *string    `json:"trackingNumber,omitempty" validate:"omitempty,max=100"`
	ShippingCarrier   *string    `json:"shippingCarrier,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

// PaymentRequest is the payload for PATCH /admin/orders/:id/payment.
type PaymentRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required,oneof=pending paid failed refunded partial_refund"`
}

// PriorityRequest is the payload for PATCH /admin/orders/:id/priority.
type PriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=low normal high urgent"`
}

// RecordRateRequest is the payload for POST /admin/rates, in INR per gram.
type RecordRateRequest struct {
	GoldRate   *float64 `json:"goldRate" validate:"required,gte=0"`
	SilverRate *float64 `json:"silverRate" validate:"required,gte=0"`
	Notes      string   `json:"notes,omitempty" validate:"max=500"`
}

// ListOrdersQuery holds the query parameters of the order listings.
type ListOrdersQuery struct {
	Status    string `form:"status"`
	Search    string `form:"search" validate:"max=100"`
	DateRange string `form:"dateRange" validate:"omitempty,oneof=all today week month"`
	Queue     bool   `form:"queue"`
	Page      int    `form:"page" validate:"gte=0"`
	Limit     int    `form:"limit" validate:"gte=0"`
}

// PageQuery holds page/limit for paged admin views.
type PageQuery struct {
	Page  int `form:"page" validate:"gte=0"`
	Limit int `form:"limit" validate:"gte=0"`
}

// HistoryQuery holds the limit of GET /admin/rates/history.
type HistoryQuery struct {
	Limit int `form:"limit" validate:"gte=0,max=100"`
}
