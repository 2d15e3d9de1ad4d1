package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/dto"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/validation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255
)

// ordersHandler serves the customer order routes.
type ordersHandler struct {
	orders *orders.Service
	idem   *idempotency.Store
	v      *validatorv10.Validate
	log    *zap.Logger
}

func (h *ordersHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	userID := caller(c)

	// Require idempotency key header
	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" || len(key) > maxIdempotencyKey {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationError("invalid idempotency key", []dto.FieldError{{
			Field:   idempotencyHeader,
			Message: "header is required and at most 255 characters",
			Tag:     "required",
		}}))
		return
	}

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	scoped := idempotency.ScopedKey(userID, key)
	in := createInput(userID, req)
	in.IdempotencyKey = scoped

	o, err := h.orders.Create(ctx, in)
	if errors.Is(err, apperr.ErrDuplicateRequest) {
		h.replay(c, scoped)
		return
	}
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	body, err := json.Marshal(viewOrder(o, time.Now().UTC()))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	// The order exists either way; a failed MarkDone only turns later
	// retries into 202s.
	if err := h.idem.MarkDone(ctx, scoped, string(body), http.StatusCreated); err != nil {
		h.log.Warn("store idempotent response failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}

	c.Header("Location", "/orders/"+o.OrderID)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

// replay answers a retried POST /orders from the idempotency record.
func (h *ordersHandler) replay(c *gin.Context, key string) {
	rec, err := h.idem.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if rec == nil {
		// expired between the failed write and this read
		writeError(c, h.log, apperr.ErrDuplicateRequest)
		return
	}
	c.Header("Idempotent-Replayed", "true")
	if rec.Status == idempotency.StatusDone && rec.ResponseBody != "" {
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"orderId": rec.OrderID, "message": "request already in progress"})
}

func (h *ordersHandler) list(c *gin.Context) {
	var q validation.ListOrdersQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}
	f, p := listParams(q)
	f.UserID = caller(c)
	f.Queue = false

	res, err := h.orders.List(c.Request.Context(), f, p)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewResult(res, time.Now().UTC()))
}

func (h *ordersHandler) get(c *gin.Context) {
	o, err := h.orders.GetForUser(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func (h *ordersHandler) cancel(c *gin.Context) {
	var req validation.CancelRequest
	if c.Request.ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req, h.v); err != nil {
			return
		}
	}
	o, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), caller(c), req.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, viewOrder(o, time.Now().UTC()))
}

func createInput(userID string, req validation.CreateOrderRequest) orders.CreateInput {
	in := orders.CreateInput{
		UserID:          userID,
		Items:           make([]orders.ItemInput, 0, len(req.Items)),
		ShippingAddress: address(req.ShippingAddress),
		SameAsShipping:  req.SameAsShipping,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		DiscountAmount:  req.DiscountAmount,
		Priority:        orders.Priority(req.Priority),
		Notes:           req.Notes,
	}
	if req.BillingAddress != nil {
		b := address(*req.BillingAddress)
		in.BillingAddress = &b
	}
	if req.TaxAmount != nil && req.ShippingAmount != nil {
		in.Charges = &orders.Charges{Tax: *req.TaxAmount, Shipping: *req.ShippingAmount}
	}
	for _, it := range req.Items {
		item := orders.ItemInput{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Category:  it.Category,
			Material:  it.Material,
			PriceType: orders.PriceType(it.PriceType),
			UnitPrice: it.UnitPrice,
			Weight:    it.Weight,
			Quantity:  it.Quantity,
		}
		if it.Customization != nil {
			item.Customization = &orders.Customization{
				Engraving:    it.Customization.Engraving,
				Size:         it.Customization.Size,
				Instructions: it.Customization.Instructions,
			}
		}
		in.Items = append(in.Items, item)
	}
	return in
}

func address(a validation.AddressRequest) orders.Address {
	return orders.Address{
		Name:       a.Name,
		Address:    a.Address,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}
