package handlers

import (
	"time"

	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
)

// orderView is the order as served over HTTP: the stored fields plus the
// values derived at read time.
type orderView struct {
	*orders.Order
	BillingAddress orders.Address `json:"billingAddress"`
	OrderAge       int            `json:"orderAge"` // whole days
	TotalItems     int            `json:"totalItems"`
	TotalWeight    float64        `json:"totalWeight"`
	HasGoldItems   bool           `json:"hasGoldItems"`
	HasSilverItems bool           `json:"hasSilverItems"`
}

type resultView struct {
	Items []orderView `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Pages int         `json:"pages"`
}

func viewOrder(o *orders.Order, now time.Time) orderView {
	return orderView{
		Order:          o,
		BillingAddress: o.EffectiveBillingAddress(),
		OrderAge:       o.OrderAge(now),
		TotalItems:     o.TotalItems(),
		TotalWeight:    o.TotalWeight(),
		HasGoldItems:   o.HasGoldItems(),
		HasSilverItems: o.HasSilverItems(),
	}
}

func viewResult(res orders.Result, now time.Time) resultView {
	items := make([]orderView, len(res.Items))
	for i := range res.Items {
		items[i] = viewOrder(&res.Items[i], now)
	}
	return resultView{Items: items, Total: res.Total, Page: res.Page, Pages: res.Pages}
}
