package orders

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
)

// Metals priced by weight.
const (
	MetalGold   = "gold"
	MetalSilver = "silver"
)

// MetalOf maps a free-text material ("Gold 22K", "sterling silver") to the
// metal whose rate prices it, or "" when neither matches.
func MetalOf(material string) string {
	m := strings.ToLower(material)
	switch {
	case strings.Contains(m, MetalGold):
		return MetalGold
	case strings.Contains(m, MetalSilver):
		return MetalSilver
	}
	return ""
}

// OrderAge is the number of whole days since the order was created.
func (o *Order) OrderAge(now time.Time) int {
	if o.CreatedAt.IsZero() || now.Before(o.CreatedAt) {
		return 0
	}
	return int(now.Sub(o.CreatedAt).Hours() / 24)
}

// TotalItems is the sum of item quantities.
func (o *Order) TotalItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// TotalWeight sums weight × quantity over items that carry a weight.
func (o *Order) TotalWeight() float64 {
	var w float64
	for _, it := range o.Items {
		if it.Weight != nil {
			w += *it.Weight * float64(it.Quantity)
		}
	}
	return w
}

func (o *Order) hasMetal(metal string) bool {
	for _, it := range o.Items {
		if MetalOf(it.Material) == metal {
			return true
		}
	}
	return false
}

// HasGoldItems reports whether any item is made of gold.
func (o *Order) HasGoldItems() bool { return o.hasMetal(MetalGold) }

// HasSilverItems reports whether any item is made of silver.
func (o *Order) HasSilverItems() bool { return o.hasMetal(MetalSilver) }

// EffectiveBillingAddress resolves the billing address at read time.
func (o *Order) EffectiveBillingAddress() Address {
	if o.SameAsShipping || o.BillingAddress == nil {
		return o.ShippingAddress
	}
	return *o.BillingAddress
}

// LastChange returns the most recent history entry.
func (o *Order) LastChange() (StatusChange, bool) {
	if len(o.StatusHistory) == 0 {
		return StatusChange{}, false
	}
	return o.StatusHistory[len(o.StatusHistory)-1], true
}

// amountsEqual compares money in whole cents.
func amountsEqual(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// Validate checks the order invariants. It runs before every write.
func (o *Order) Validate() error {
	if o.OrderID == "" || o.OrderNumber == "" {
		return invalid("order id and order number are required")
	}
	if o.UserID == "" {
		return invalid("user id is required")
	}
	if len(o.Items) == 0 {
		return invalid("order must contain at least one item")
	}

	var subtotal float64
	for i, it := range o.Items {
		if err := it.validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		subtotal += it.TotalPrice
	}
	if !amountsEqual(subtotal, o.Subtotal) {
		return invalid("subtotal %.2f does not match items %.2f", o.Subtotal, subtotal)
	}
	for name, v := range map[string]float64{"tax": o.TaxAmount, "shipping": o.ShippingAmount, "discount": o.DiscountAmount} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("%s amount must be a non-negative number", name)
		}
	}
	want := o.Subtotal + o.TaxAmount + o.ShippingAmount - o.DiscountAmount
	if !amountsEqual(want, o.Total) {
		return invalid("total %.2f != subtotal + tax + shipping - discount (%.2f)", o.Total, want)
	}
	if o.Total < 0 {
		return invalid("total must not be negative")
	}

	if err := o.ShippingAddress.validate("shipping"); err != nil {
		return err
	}
	if !o.SameAsShipping && o.BillingAddress != nil {
		if err := o.BillingAddress.validate("billing"); err != nil {
			return err
		}
	}

	if !o.PaymentMethod.Valid() {
		return invalid("unknown payment method %q", o.PaymentMethod)
	}
	if !o.PaymentStatus.Valid() {
		return invalid("unknown payment status %q", o.PaymentStatus)
	}
	if !o.Priority.Valid() {
		return invalid("unknown priority %q", o.Priority)
	}
	if !o.Status.Valid() {
		return invalid("unknown status %q", o.Status)
	}
	last, ok := o.LastChange()
	if !ok || last.Status != o.Status {
		return invalid("status history must end with the current status")
	}
	return nil
}

func (it LineItem) validate() error {
	if it.ProductID == "" || it.Name == "" {
		return invalid("product id and name are required")
	}
	if it.Quantity < 1 {
		return invalid("quantity must be >= 1")
	}
	if it.UnitPrice < 0 || math.IsNaN(it.UnitPrice) || math.IsInf(it.UnitPrice, 0) {
		return invalid("unit price must be a non-negative number")
	}
	switch it.PriceType {
	case PriceFixed:
	case PriceWeightBased:
		if it.Weight == nil || *it.Weight <= 0 {
			return invalid("weight-based item needs a positive weight")
		}
	default:
		return invalid("unknown price type %q", it.PriceType)
	}
	if !amountsEqual(it.UnitPrice*float64(it.Quantity), it.TotalPrice) {
		return invalid("total price %.2f != unit price %.2f x %d", it.TotalPrice, it.UnitPrice, it.Quantity)
	}
	return nil
}

func (a Address) validate(kind string) error {
	missing := []string{}
	for field, v := range map[string]string{
		"name": a.Name, "address": a.Address, "city": a.City,
		"postalCode": a.PostalCode, "country": a.Country, "phone": a.Phone,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return invalid("%s address missing %s", kind, strings.Join(missing, ", "))
	}
	return nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentOnline, PaymentBankTransfer, PaymentUPI, PaymentCard:
		return true
	}
	return false
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded, PaymentPartialRefund:
		return true
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.rank() > 0
}

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityNormal:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}
