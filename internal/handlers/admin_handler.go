package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/validation"
)

// adminHandler serves /admin/orders.
type adminHandler struct {
	orders *orders.Service
	v      *validatorv10.Validate
	log    *zap.Logger
}

func (h *adminHandler) list(c *gin.Context) {
	var q validation.ListOrdersQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}
	f, p := listParams(q)
	res, err := h.orders.List(c.Request.Context(), f, p)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewResult(res, time.Now().UTC()))
}

func (h *adminHandler) attention(c *gin.Context) {
	var q validation.PageQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}
	res, err := h.orders.Attention(c.Request.Context(), orders.Page{Page: q.Page, Limit: q.Limit})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewResult(res, time.Now().UTC()))
}

func (h *adminHandler) stats(c *gin.Context) {
	st, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *adminHandler) get(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func (h *adminHandler) transition(c *gin.Context) {
	var req validation.TransitionRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.orders.Transition(c.Request.Context(), c.Param("id"), orders.Status(req.Status), req.Note, caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func (h *adminHandler) bulkStatus(c *gin.Context) {
	var req validation.BulkStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	n, err := h.orders.BulkTransition(c.Request.Context(), req.OrderIDs, orders.Status(req.Status), req.Note, caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n, "status": req.Status})
}

func (h *adminHandler) fulfillment(c *gin.Context) {
	var req validation.FulfillmentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	u := orders.FulfillmentUpdate{
		TrackingNumber:    req.TrackingNumber,
		ShippingCarrier:   req.ShippingCarrier,
		EstimatedDelivery: req.EstimatedDelivery,
	}
	o, err := h.orders.UpdateFulfillment(c.Request.Context(), c.Param("id"), u, caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func (h *adminHandler) payment(c *gin.Context) {
	var req validation.PaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.orders.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), orders.PaymentStatus(req.PaymentStatus), caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func (h *adminHandler) priority(c *gin.Context) {
	var req validation.PriorityRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.orders.UpdatePriority(c.Request.Context(), c.Param("id"), orders.Priority(req.Priority), caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}
