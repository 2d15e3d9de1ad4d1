package orders

import (
	"github.com/shopspring/decimal"
)

// Charges are the order-level amounts added to the subtotal.
type Charges struct {
	Tax      float64
	Shipping float64
}

// ChargePolicy derives charges from the subtotal when the caller does not
// supply them. The zero policy charges nothing.
type ChargePolicy struct {
	TaxRate           float64 // fraction, e.g. 0.03
	ShippingFee       float64 // flat fee
	FreeShippingAbove float64 // 0 disables the threshold
}

// Apply computes tax and shipping for subtotal.
func (p ChargePolicy) Apply(subtotal float64) Charges {
	sub := decimal.NewFromFloat(subtotal)
	tax := sub.Mul(decimal.NewFromFloat(p.TaxRate)).Round(2)

	shipping := decimal.NewFromFloat(p.ShippingFee)
	if p.FreeShippingAbove > 0 && sub.GreaterThanOrEqual(decimal.NewFromFloat(p.FreeShippingAbove)) {
		shipping = decimal.Zero
	}
	return Charges{Tax: tax.InexactFloat64(), Shipping: shipping.Round(2).InexactFloat64()}
}

// weightPrice is weight (grams) × rate per gram, rounded to paise.
func weightPrice(weight, rate float64) float64 {
	return decimal.NewFromFloat(weight).Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
}

// lineTotal is unit × quantity, rounded to paise.
func lineTotal(unit float64, qty int) float64 {
	return decimal.NewFromFloat(unit).Mul(decimal.NewFromInt(int64(qty))).Round(2).InexactFloat64()
}

// orderTotal is subtotal + tax + shipping − discount.
func orderTotal(subtotal float64, c Charges, discount float64) float64 {
	return decimal.NewFromFloat(subtotal).
		Add(decimal.NewFromFloat(c.Tax)).
		Add(decimal.NewFromFloat(c.Shipping)).
		Sub(decimal.NewFromFloat(discount)).
		Round(2).InexactFloat64()
}

// sumTotals adds the line totals of items.
func sumTotals(items []LineItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.TotalPrice))
	}
	return sum.Round(2).InexactFloat64()
}
