package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	bodies []string
	attrs  []map[string]string
	err    error
}

func (r *recordingSender) SendMessage(ctx context.Context, body string, attrs map[string]string) error {
	r.bodies = append(r.bodies, body)
	r.attrs = append(r.attrs, attrs)
	return r.err
}

func TestEmit_EncodesBodyAndAttributes(t *testing.T) {
	s := &recordingSender{}
	e := NewEmitter(s, zap.NewNop())
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	e.Emit(context.Background(), Event{Type: OrderCreated, OrderID: "o-1", Total: 1200.5})

	if len(s.bodies) != 1 {
		t.Fatalf("expected one message, got %d", len(s.bodies))
	}
	if s.attrs[0][AttrEventType] != OrderCreated || s.attrs[0]["order_id"] != "o-1" {
		t.Fatalf("unexpected attributes: %v", s.attrs[0])
	}
	var got Event
	if err := json.Unmarshal([]byte(s.bodies[0]), &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !got.OccurredAt.Equal(fixed) || got.Total != 1200.5 {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestEmit_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &recordingSender{err: errors.New("queue down")}
	e := NewEmitter(s, zap.New(core))

	e.Emit(context.Background(), Event{Type: RateRecorded, RateID: "r-1"})

	if logs.FilterMessage("publish event").Len() != 1 {
		t.Fatalf("expected one logged failure, got %v", logs.All())
	}
}

func TestEmit_NilSenderIsNoop(t *testing.T) {
	var e *Emitter
	e.Emit(context.Background(), Event{Type: OrderUpdated})

	NewEmitter(nil, nil).Emit(context.Background(), Event{Type: OrderUpdated})
}

// stalledSender blocks until its context ends, like a queue that stopped answering.
type stalledSender struct{ hadDeadline bool }

func (s *stalledSender) SendMessage(ctx context.Context, body string, attrs map[string]string) error {
	_, s.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestEmit_SendIsBounded(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &stalledSender{}
	e := NewEmitter(s, zap.New(core))
	e.timeout = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		e.Emit(context.Background(), Event{Type: OrderCreated, OrderID: "o-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit did not return while the queue stalled")
	}
	if !s.hadDeadline {
		t.Fatal("send context carried no deadline")
	}
	if logs.FilterMessage("publish event").Len() != 1 {
		t.Fatalf("expected the timeout to be logged, got %v", logs.All())
	}
}
