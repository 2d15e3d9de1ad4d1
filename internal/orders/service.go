package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/events"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
	"github.com/imrishuroy/go-jewelry-orders/internal/users"
)

const (
	createAttempts  = 3
	bulkLoadWorkers = 10

	createdNote        = "order created"
	customerCancelNote = "cancelled by customer"
)

// MaxBulk is the largest batch BulkTransition accepts; it matches the
// DynamoDB transaction limit.
const MaxBulk = maxTransactItems

// RateQuoter prices weight-based items.
type RateQuoter interface {
	Quote(ctx context.Context) (rates.Quote, error)
}

// UserDirectory resolves the ordering user.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*users.User, error)
}

// Publisher receives order events.
type Publisher interface {
	Emit(ctx context.Context, ev events.Event)
}

// Config holds the collaborators and policies of Service. Only the store
// is required.
type Config struct {
	Rates       RateQuoter
	Users       UserDirectory
	Events      Publisher
	Idempotency *idempotency.Store
	Charges     ChargePolicy
	// AllowAnyTransition lets admins move an order to any other status.
	// Terminal statuses stay terminal either way.
	AllowAnyTransition bool
	StoreTimeout       time.Duration
}

// Service owns order creation and every order mutation.
type Service struct {
	store     *Store
	rates     RateQuoter
	users     UserDirectory
	events    Publisher
	idem      *idempotency.Store
	charges   ChargePolicy
	enforce   bool
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
	newNumber func(time.Time) string
}

// NewService wires a Service around store.
func NewService(store *Store, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Service{
		store:     store,
		rates:     cfg.Rates,
		users:     cfg.Users,
		events:    cfg.Events,
		idem:      cfg.Idempotency,
		charges:   cfg.Charges,
		enforce:   !cfg.AllowAnyTransition,
		timeout:   cfg.StoreTimeout,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		newNumber: NewOrderNumber,
	}
}

// ItemInput is one requested line item. UnitPrice is read for fixed items
// only; weight-based items are priced from the current rate.
type ItemInput struct {
	ProductID     string
	Name          string
	SKU           string
	Category      string
	Material      string
	PriceType     PriceType
	UnitPrice     float64
	Weight        float64 // grams
	Quantity      int
	Customization *Customization
}

// CreateInput is everything needed to place an order.
type CreateInput struct {
	UserID          string
	Items           []ItemInput
	ShippingAddress Address
	BillingAddress  *Address
	SameAsShipping  bool
	PaymentMethod   PaymentMethod
	// Charges overrides the configured ChargePolicy when set.
	Charges        *Charges
	DiscountAmount float64
	Priority       Priority
	Notes          string
	// IdempotencyKey is already scoped to the user; empty skips the
	// idempotency record.
	IdempotencyKey string
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create prices and persists a new pending order.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.IdempotencyKey != "" && s.idem == nil {
		return nil, errors.New("idempotency store not configured")
	}

	o := &Order{
		OrderID:         s.newID(),
		UserID:          in.UserID,
		Currency:        CurrencyINR,
		ShippingAddress: in.ShippingAddress,
		SameAsShipping:  in.SameAsShipping,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		Priority:        in.Priority,
		Notes:           in.Notes,
		DiscountAmount:  in.DiscountAmount,
		Version:         1,
	}
	if o.Priority == "" {
		o.Priority = PriorityNormal
	}
	if !in.SameAsShipping && in.BillingAddress != nil {
		billing := *in.BillingAddress
		o.BillingAddress = &billing
	}

	if s.users != nil {
		sctx, cancel := s.storeCtx(ctx)
		u, err := s.users.Get(sctx, in.UserID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		if u == nil {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, in.UserID)
		}
		o.CustomerName = u.Name
		o.CustomerEmail = u.Email
	}

	items, err := s.priceItems(ctx, in.Items, o)
	if err != nil {
		return nil, err
	}
	o.Items = items
	o.Subtotal = sumTotals(items)

	charges := s.charges.Apply(o.Subtotal)
	if in.Charges != nil {
		charges = *in.Charges
	}
	o.TaxAmount = charges.Tax
	o.ShippingAmount = charges.Shipping
	o.Total = orderTotal(o.Subtotal, charges, in.DiscountAmount)
	if o.Total < 0 {
		return nil, invalid("discount %.2f exceeds the order value", in.DiscountAmount)
	}

	now := s.now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.StatusHistory = []StatusChange{{Status: StatusPending, Timestamp: now, Note: createdNote, UpdatedBy: in.UserID}}

	var rec *idempotency.IdempotencyRecord
	if in.IdempotencyKey != "" {
		r := s.idem.NewRecord(in.IdempotencyKey, o.OrderID)
		rec = &r
	}

	for attempt := 0; ; attempt++ {
		if attempt == createAttempts {
			return nil, fmt.Errorf("%w: order number collided %d times", apperr.ErrConflict, createAttempts)
		}
		o.OrderNumber = s.newNumber(now)
		if err := o.Validate(); err != nil {
			return nil, err
		}

		sctx, cancel := s.storeCtx(ctx)
		err = s.store.Create(sctx, o, rec)
		cancel()
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, ErrNumberTaken):
			s.log.Warn("order number collision", zap.String("order_number", o.OrderNumber), zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, ErrIdempotencyKeyUsed):
			return nil, fmt.Errorf("%w: idempotency key already used", apperr.ErrDuplicateRequest)
		case errors.Is(err, ErrOrderExists):
			return nil, fmt.Errorf("%w: order id %s already exists", apperr.ErrConflict, o.OrderID)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", o.OrderID),
		zap.String("order_number", o.OrderNumber),
		zap.String("user_id", o.UserID),
		zap.Float64("total", o.Total),
		zap.String("rate_source", o.RateSource),
		zap.Bool("rate_fallback", o.RateFallback),
	)
	s.emit(ctx, events.Event{
		Type:        events.OrderCreated,
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Total:       o.Total,
		ItemCount:   o.TotalItems(),
	})
	return o, nil
}

// priceItems resolves unit prices. Rates are quoted once per order and
// only when a weight-based item needs them.
func (s *Service) priceItems(ctx context.Context, in []ItemInput, o *Order) ([]LineItem, error) {
	var quote *rates.Quote
	items := make([]LineItem, 0, len(in))
	for i, it := range in {
		li := LineItem{
			ProductID:     it.ProductID,
			Name:          it.Name,
			SKU:           it.SKU,
			Category:      it.Category,
			Material:      it.Material,
			PriceType:     it.PriceType,
			Quantity:      it.Quantity,
			Customization: it.Customization,
		}
		if it.Weight > 0 {
			w := it.Weight
			li.Weight = &w
		}

		switch it.PriceType {
		case PriceFixed:
			li.UnitPrice = it.UnitPrice
		case PriceWeightBased:
			if quote == nil {
				q, err := s.quote(ctx)
				if err != nil {
					return nil, err
				}
				quote = &q
				o.RateSource = q.Source
				o.RateFallback = q.Fallback
			}
			metal := MetalOf(it.Material)
			rate := quote.Gold
			if metal == MetalSilver {
				rate = quote.Silver
			}
			if rate <= 0 {
				return nil, fmt.Errorf("%w: no active %s rate for item %d", apperr.ErrNotFound, metal, i)
			}
			r := rate
			if metal == MetalGold {
				li.GoldRateAtPurchase = &r
			} else {
				li.SilverRateAtPurchase = &r
			}
			li.UnitPrice = weightPrice(it.Weight, rate)
		}
		li.TotalPrice = lineTotal(li.UnitPrice, li.Quantity)
		items = append(items, li)
	}
	return items, nil
}

func (s *Service) quote(ctx context.Context) (rates.Quote, error) {
	if s.rates == nil {
		return rates.Quote{}, fmt.Errorf("%w: no rate source configured", apperr.ErrNotFound)
	}
	q, err := s.rates.Quote(ctx)
	if err != nil {
		return rates.Quote{}, fmt.Errorf("quote rates: %w", err)
	}
	return q, nil
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return invalid("user id is required")
	}
	if len(in.Items) == 0 {
		return invalid("order must contain at least one item")
	}
	for i, it := range in.Items {
		if err := it.validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	if err := in.ShippingAddress.validate("shipping"); err != nil {
		return err
	}
	if !in.SameAsShipping && in.BillingAddress != nil {
		if err := in.BillingAddress.validate("billing"); err != nil {
			return err
		}
	}
	if !in.PaymentMethod.Valid() {
		return invalid("unknown payment method %q", in.PaymentMethod)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return invalid("unknown priority %q", in.Priority)
	}
	if in.DiscountAmount < 0 {
		return invalid("discount must not be negative")
	}
	if in.Charges != nil && (in.Charges.Tax < 0 || in.Charges.Shipping < 0) {
		return invalid("tax and shipping must not be negative")
	}
	return nil
}

func (it ItemInput) validate() error {
	if strings.TrimSpace(it.ProductID) == "" || strings.TrimSpace(it.Name) == "" {
		return invalid("product id and name are required")
	}
	if it.Quantity < 1 {
		return invalid("quantity must be >= 1")
	}
	if it.Weight < 0 {
		return invalid("weight must not be negative")
	}
	switch it.PriceType {
	case PriceFixed:
		if it.UnitPrice <= 0 {
			return invalid("fixed-price item needs a positive unit price")
		}
	case PriceWeightBased:
		if it.Weight <= 0 {
			return invalid("weight-based item needs a positive weight")
		}
		if MetalOf(it.Material) == "" {
			return invalid("weight-based item must be gold or silver, got %q", it.Material)
		}
	default:
		return invalid("unknown price type %q", it.PriceType)
	}
	return nil
}

// Get returns the order or ErrNotFound.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	o, err := s.store.Get(sctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}
	return o, nil
}

// GetForUser returns the order only when userID owns it. Foreign orders are
// reported as missing.
func (s *Service) GetForUser(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("%w: order %s", apperr.ErrNotFound, orderID)
	}
	return o, nil
}

// Transition moves one order to status and appends the history entry.
// A concurrent change surfaces as ErrConflict; the caller decides whether
// to retry.
func (s *Service) Transition(ctx context.Context, orderID string, status Status, note, updatedBy string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, status, note, updatedBy, s.enforce)
}

// Cancel lets a customer cancel their own order while the state machine
// still allows it, regardless of the admin override.
func (s *Service) Cancel(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	o, err := s.GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = customerCancelNote
	}
	return s.transition(ctx, o, StatusCancelled, reason, userID, true)
}

func (s *Service) transition(ctx context.Context, o *Order, status Status, note, updatedBy string, enforce bool) (*Order, error) {
	from := o.Status
	if err := applyTransition(o, status, note, updatedBy, s.now().UTC(), enforce); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	err := s.store.Save(sctx, o)
	cancel()
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: order %s changed concurrently", apperr.ErrConflict, o.OrderID)
		}
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.log.Info("order status changed",
		zap.String("order_id", o.OrderID),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
		zap.String("updated_by", updatedBy),
	)
	s.emitTransition(ctx, o, from, updatedBy)
	return o, nil
}

// applyTransition mutates o in memory; nothing is persisted.
func applyTransition(o *Order, status Status, note, updatedBy string, now time.Time, enforce bool) error {
	if err := checkTransition(o.Status, status, enforce); err != nil {
		return fmt.Errorf("order %s: %w", o.OrderID, err)
	}
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusChange{Status: status, Timestamp: now, Note: note, UpdatedBy: updatedBy})
	o.UpdatedAt = now
	if status == StatusDelivered && o.ActualDelivery == nil {
		delivered := now
		o.ActualDelivery = &delivered
	}
	return nil
}

// BulkTransition moves every listed order to status, all or nothing. Ids
// are de-duplicated. Any missing id fails the batch with ErrNotFound, any
// illegal move with ErrInvalidTransition, and a concurrent change to any
// order with ErrConflict; in each case no order is modified.
func (s *Service) BulkTransition(ctx context.Context, orderIDs []string, status Status, note, updatedBy string) (int, error) {
	ids := make([]string, 0, len(orderIDs))
	seen := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return 0, invalid("order ids must not be empty")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, invalid("no order ids given")
	}
	if len(ids) > MaxBulk {
		return 0, invalid("at most %d orders per batch, got %d", MaxBulk, len(ids))
	}
	if !status.Valid() {
		return 0, invalid("unknown status %q", status)
	}

	loaded := make([]*Order, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkLoadWorkers)
	for i, id := range ids {
		g.Go(func() error {
			sctx, cancel := s.storeCtx(gctx)
			defer cancel()
			o, err := s.store.Get(sctx, id)
			if err != nil {
				return fmt.Errorf("load order %s: %w", id, err)
			}
			loaded[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var missing []string
	for i, o := range loaded {
		if o == nil {
			missing = append(missing, ids[i])
		}
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("%w: orders %s", apperr.ErrNotFound, strings.Join(missing, ", "))
	}

	now := s.now().UTC()
	from := make([]Status, len(loaded))
	for i, o := range loaded {
		from[i] = o.Status
		if err := applyTransition(o, status, note, updatedBy, now, s.enforce); err != nil {
			return 0, err
		}
		if err := o.Validate(); err != nil {
			return 0, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
	}

	sctx, cancel := s.storeCtx(ctx)
	err := s.store.SaveAll(sctx, loaded)
	cancel()
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return 0, fmt.Errorf("%w: an order in the batch changed concurrently", apperr.ErrConflict)
		}
		return 0, fmt.Errorf("save orders: %w", err)
	}

	s.log.Info("bulk status change",
		zap.Int("count", len(loaded)),
		zap.String("to", string(status)),
		zap.String("updated_by", updatedBy),
	)
	for i, o := range loaded {
		s.emitTransition(ctx, o, from[i], updatedBy)
	}
	return len(loaded), nil
}

// FulfillmentUpdate carries the shipping details an admin may set. Nil
// fields are left unchanged.
type FulfillmentUpdate struct {
	TrackingNumber    *string
	ShippingCarrier   *string
	EstimatedDelivery *time.Time
}

// UpdateFulfillment sets tracking details without touching the status.
func (s *Service) UpdateFulfillment(ctx context.Context, orderID string, u FulfillmentUpdate, updatedBy string) (*Order, error) {
	var fields []string
	if u.TrackingNumber != nil {
		fields = append(fields, "trackingNumber")
	}
	if u.ShippingCarrier != nil {
		fields = append(fields, "shippingCarrier")
	}
	if u.EstimatedDelivery != nil {
		fields = append(fields, "estimatedDelivery")
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}
	return s.update(ctx, orderID, fields, updatedBy, func(o *Order) error {
		if u.TrackingNumber != nil {
			o.TrackingNumber = strings.TrimSpace(*u.TrackingNumber)
		}
		if u.ShippingCarrier != nil {
			o.ShippingCarrier = strings.TrimSpace(*u.ShippingCarrier)
		}
		if u.EstimatedDelivery != nil {
			eta := u.EstimatedDelivery.UTC()
			o.EstimatedDelivery = &eta
		}
		return nil
	})
}

// UpdatePaymentStatus records a payment state change. It adds no history
// entry; history tracks Status only.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, ps PaymentStatus, updatedBy string) (*Order, error) {
	if !ps.Valid() {
		return nil, invalid("unknown payment status %q", ps)
	}
	return s.update(ctx, orderID, []string{"paymentStatus"}, updatedBy, func(o *Order) error {
		o.PaymentStatus = ps
		return nil
	})
}

// UpdatePriority changes where the order sits in the admin queue.
func (s *Service) UpdatePriority(ctx context.Context, orderID string, p Priority, updatedBy string) (*Order, error) {
	if !p.Valid() {
		return nil, invalid("unknown priority %q", p)
	}
	return s.update(ctx, orderID, []string{"priority"}, updatedBy, func(o *Order) error {
		o.Priority = p
		return nil
	})
}

func (s *Service) update(ctx context.Context, orderID string, fields []string, updatedBy string, mutate func(*Order) error) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := mutate(o); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.now().UTC()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	err = s.store.Save(sctx, o)
	cancel()
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return nil, fmt.Errorf("%w: order %s changed concurrently", apperr.ErrConflict, o.OrderID)
		}
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.log.Info("order updated",
		zap.String("order_id", o.OrderID),
		zap.Strings("fields", fields),
		zap.String("updated_by", updatedBy),
	)
	s.emit(ctx, events.Event{
		Type:        events.OrderUpdated,
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Fields:      fields,
		UpdatedBy:   updatedBy,
	})
	return o, nil
}

func (s *Service) emitTransition(ctx context.Context, o *Order, from Status, updatedBy string) {
	s.emit(ctx, events.Event{
		Type:           events.OrderStatusChanged,
		OrderID:        o.OrderID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PreviousStatus: string(from),
		Total:          o.Total,
		UpdatedBy:      updatedBy,
	})
}

func (s *Service) emit(ctx context.Context, ev events.Event) {
	if s.events != nil {
		s.events.Emit(ctx, ev)
	}
}
