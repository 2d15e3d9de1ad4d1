package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-jewelry-orders/internal/dynamotest"
)

const table = "idempotency-table"

func seed(t *testing.T, f *dynamotest.Fake, rec IdempotencyRecord) {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.Put(table, item)
}

func TestNewRecord_TTL(t *testing.T) {
	s := NewStore(dynamotest.New().CreateTable(table, "idempotency_key"), table, 48*time.Hour)
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	rec := s.NewRecord("u1#k1", "order-1")
	if rec.Status != StatusInProgress || rec.OrderID != "order-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ExpiresAt != fixed.Add(48*time.Hour).Unix() {
		t.Fatalf("expires_at = %d", rec.ExpiresAt)
	}
}

func TestGet_MarkDone(t *testing.T) {
	f := dynamotest.New().CreateTable(table, "idempotency_key")
	s := NewStore(f, table, 48*time.Hour)
	ctx := context.Background()
	key := ScopedKey("user-1", "test-key-1")

	rec, err := s.Get(ctx, key)
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil) for missing key, got %+v %v", rec, err)
	}

	seed(t, f, s.NewRecord(key, "order-123"))

	rec, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil || rec.Status != StatusInProgress || rec.OrderID != "order-123" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := s.MarkDone(ctx, key, `{"ok":true}`, 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	item := f.Item(table, key)
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"ok":true}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}
	rec, _ = s.Get(ctx, key)
	if rec.ResponseStatus != 201 {
		t.Fatalf("response status = %d", rec.ResponseStatus)
	}
}

func TestMarkDone_MissingRecord(t *testing.T) {
	f := dynamotest.New().CreateTable(table, "idempotency_key")
	s := NewStore(f, table, time.Hour)

	err := s.MarkDone(context.Background(), "nope", "{}", 201)
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if f.Item(table, "nope") != nil {
		t.Fatal("MarkDone must not create records")
	}
}
