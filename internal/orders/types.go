package orders

import "time"

// Status is the fulfillment state of an order.
type Status string

// Order statuses
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
	StatusDelivered, StatusCancelled, StatusRefunded,
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "COD"
	PaymentOnline       PaymentMethod = "online"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentUPI          PaymentMethod = "upi"
	PaymentCard         PaymentMethod = "card"
)

// PaymentStatus is tracked independently of Status.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
)

// Priority orders the admin queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriceType decides how a line item's unit price is resolved.
type PriceType string

const (
	PriceFixed       PriceType = "fixed"
	PriceWeightBased PriceType = "weight-based"
)

// Currency of every amount in an order.
const CurrencyINR = "INR"

// Rate sources recorded on orders with weight-based items.
const (
	RateSourceFeed  = "feed"
	RateSourceStore = "store"
)

// Address is a postal address; Name and Phone identify the recipient.
type Address struct {
	Name       string `dynamodbav:"name" json:"name"`
	Address    string `dynamodbav:"address" json:"address"`
	City       string `dynamodbav:"city" json:"city"`
	State      string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	PostalCode string `dynamodbav:"postal_code" json:"postalCode"`
	Country    string `dynamodbav:"country" json:"country"`
	Phone      string `dynamodbav:"phone" json:"phone"`
}

// Customization carries optional personalisation for a line item.
type Customization struct {
	Engraving    string `dynamodbav:"engraving,omitempty" json:"engraving,omitempty"`
	Size         string `dynamodbav:"size,omitempty" json:"size,omitempty"`
	Instructions string `dynamodbav:"instructions,omitempty" json:"instructions,omitempty"`
}

// LineItem is one product entry with its price snapshot.
// UnitPrice is fixed at purchase and never recomputed from live rates.
type LineItem struct {
	ProductID            string         `dynamodbav:"product_id" json:"productId"`
	Name                 string         `dynamodbav:"name" json:"name"`
	SKU                  string         `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Category             string         `dynamodbav:"category,omitempty" json:"category,omitempty"`
	Material             string         `dynamodbav:"material,omitempty" json:"material,omitempty"`
	PriceType            PriceType      `dynamodbav:"price_type" json:"priceType"`
	GoldRateAtPurchase   *float64       `dynamodbav:"gold_rate_at_purchase,omitempty" json:"goldRateAtPurchase"`
	SilverRateAtPurchase *float64       `dynamodbav:"silver_rate_at_purchase,omitempty" json:"silverRateAtPurchase"`
	Weight               *float64       `dynamodbav:"weight,omitempty" json:"weight"`
	UnitPrice            float64        `dynamodbav:"unit_price" json:"unitPrice"`
	Quantity             int            `dynamodbav:"quantity" json:"quantity"`
	TotalPrice           float64        `dynamodbav:"total_price" json:"totalPrice"`
	Customization        *Customization `dynamodbav:"customization,omitempty" json:"customization,omitempty"`
}

// StatusChange is one entry of the append-only status audit trail.
type StatusChange struct {
	Status    Status    `dynamodbav:"status" json:"status"`
	Timestamp time.Time `dynamodbav:"timestamp" json:"timestamp"`
	Note      string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	UpdatedBy string    `dynamodbav:"updated_by,omitempty" json:"updatedBy,omitempty"`
}

// Order represents the item stored in the orders DynamoDB table.
type Order struct {
	OrderID       string `dynamodbav:"order_id" json:"id"` // PK
	OrderNumber   string `dynamodbav:"order_number" json:"orderNumber"`
	UserID        string `dynamodbav:"user_id" json:"userId"`
	CustomerName  string `dynamodbav:"customer_name,omitempty" json:"customerName,omitempty"`
	CustomerEmail string `dynamodbav:"customer_email,omitempty" json:"customerEmail,omitempty"`

	Items          []LineItem `dynamodbav:"items" json:"items"`
	Subtotal       float64    `dynamodbav:"subtotal" json:"subtotal"`
	TaxAmount      float64    `dynamodbav:"tax_amount" json:"taxAmount"`
	ShippingAmount float64    `dynamodbav:"shipping_amount" json:"shippingAmount"`
	DiscountAmount float64    `dynamodbav:"discount_amount" json:"discountAmount"`
	Total          float64    `dynamodbav:"total" json:"total"`
	Currency       string     `dynamodbav:"currency" json:"currency"`

	ShippingAddress Address  `dynamodbav:"shipping_address" json:"shippingAddress"`
	BillingAddress  *Address `dynamodbav:"billing_address,omitempty" json:"billingAddress,omitempty"`
	SameAsShipping  bool     `dynamodbav:"same_as_shipping" json:"sameAsShipping"`

	PaymentMethod PaymentMethod  `dynamodbav:"payment_method" json:"paymentMethod"`
	PaymentStatus PaymentStatus  `dynamodbav:"payment_status" json:"paymentStatus"`
	Status        Status         `dynamodbav:"status" json:"status"`
	StatusHistory []StatusChange `dynamodbav:"status_history" json:"statusHistory"`
	Priority      Priority       `dynamodbav:"priority" json:"priority"`

	TrackingNumber    string     `dynamodbav:"tracking_number,omitempty" json:"trackingNumber,omitempty"`
	ShippingCarrier   string     `dynamodbav:"shipping_carrier,omitempty" json:"shippingCarrier,omitempty"`
	EstimatedDelivery *time.Time `dynamodbav:"estimated_delivery,omitempty" json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `dynamodbav:"actual_delivery,omitempty" json:"actualDelivery,omitempty"`

	Notes        string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	RateSource   string `dynamodbav:"rate_source,omitempty" json:"rateSource,omitempty"`
	RateFallback bool   `dynamodbav:"rate_fallback" json:"rateFallback"`

	Version   int64     `dynamodbav:"version" json:"version"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updatedAt"`
	CreatedMs int64     `dynamodbav:"created_ms" json:"-"` // GSI sort key
}
