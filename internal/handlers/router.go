// Package handlers exposes the order and rate services over HTTP.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/auth"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
	"github.com/imrishuroy/go-jewelry-orders/internal/validation"
)

// Deps groups the services behind the HTTP API.
type Deps struct {
	Orders      *orders.Service
	Rates       *rates.Service
	Idempotency *idempotency.Store
	Verifier    *auth.Verifier
	Users       auth.UserResolver
	Log         *zap.Logger
}

// NewRouter builds the gin engine. Middleware in mw (CORS) runs before
// routing.
func NewRouter(d Deps, mw ...gin.HandlerFunc) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))
	r.Use(mw...)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	RegisterRoutes(r, d)
	return r
}

// RegisterRoutes mounts the public, customer and admin routes on r.
func RegisterRoutes(r gin.IRouter, d Deps) {
	v := validation.New()
	oh := &ordersHandler{orders: d.Orders, idem: d.Idempotency, v: v, log: d.Log}
	ah := &adminHandler{orders: d.Orders, v: v, log: d.Log}
	rh := &ratesHandler{rates: d.Rates, v: v, log: d.Log}

	r.GET("/rates/current", rh.current)

	authed := r.Group("/", auth.AuthRequired(d.Verifier, d.Users, d.Log))
	authed.POST("/orders", oh.create)
	authed.GET("/orders", oh.list)
	authed.GET("/orders/:id", oh.get)
	authed.POST("/orders/:id/cancel", oh.cancel)

	admin := authed.Group("/admin", auth.AdminOnly())
	admin.GET("/orders", ah.list)
	admin.GET("/orders/attention", ah.attention)
	admin.GET("/orders/stats", ah.stats)
	admin.GET("/orders/:id", ah.get)
	admin.PATCH("/orders/:id/status", ah.transition)
	admin.POST("/orders/bulk-status", ah.bulkStatus)
	admin.PATCH("/orders/:id/fulfillment", ah.fulfillment)
	admin.PATCH("/orders/:id/payment", ah.payment)
	admin.PATCH("/orders/:id/priority", ah.priority)

	admin.POST("/rates", rh.record)
	admin.GET("/rates/history", rh.history)
	admin.POST("/rates/sync", rh.sync)
}

// listParams converts validated query parameters for OrderQuery.
func listParams(q validation.ListOrdersQuery) (orders.Filter, orders.Page) {
	return orders.Filter{
		Status:    q.Status,
		Search:    q.Search,
		DateRange: orders.DateRange(q.DateRange),
		Queue:     q.Queue,
	}, orders.Page{Page: q.Page, Limit: q.Limit}
}

// caller returns the authenticated user id; AuthRequired guarantees one.
func caller(c *gin.Context) string {
	u, _ := auth.CurrentUser(c)
	return u.UserID
}
