// Package events publishes domain notifications to the orders queue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event types, carried in the event_type message attribute.
const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	OrderUpdated       = "order.updated"
	RateRecorded       = "rate.recorded"
)

// AttrEventType names the SQS message attribute holding Event.Type.
const AttrEventType = "event_type"

// Event is the JSON body of every queue message.
type Event struct {
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurredAt"`
	OrderID        string    `json:"orderId,omitempty"`
	OrderNumber    string    `json:"orderNumber,omitempty"`
	UserID         string    `json:"userId,omitempty"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Total          float64   `json:"total,omitempty"`
	ItemCount      int       `json:"itemCount,omitempty"`
	Fields         []string  `json:"fields,omitempty"` // order.updated only
	UpdatedBy      string    `json:"updatedBy,omitempty"`
	RateID         string    `json:"rateId,omitempty"`
	GoldRate       float64   `json:"goldRate,omitempty"`
	SilverRate     float64   `json:"silverRate,omitempty"`
}

// Sender is satisfied by aws.Publisher.
type Sender interface {
	SendMessage(ctx context.Context, body string, attrs map[string]string) error
}

// DefaultSendTimeout bounds one publish.
const DefaultSendTimeout = 2 * time.Second

// Emitter publishes events after the state they describe is persisted.
// Delivery is best effort: failures are logged and never undo the write.
type Emitter struct {
	sender  Sender
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewEmitter returns an Emitter. A nil sender disables publishing.
func NewEmitter(sender Sender, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{sender: sender, log: log, now: time.Now, timeout: DefaultSendTimeout}
}

// Emit publishes ev, stamping OccurredAt when unset.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil || e.sender == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("encode event", zap.String("event_type", ev.Type), zap.Error(err))
		return
	}
	attrs := map[string]string{
		AttrEventType: ev.Type,
		"order_id":    ev.OrderID,
		"rate_id":     ev.RateID,
	}
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.sender.SendMessage(sctx, string(body), attrs); err != nil {
		e.log.Error("publish event",
			zap.String("event_type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
}
