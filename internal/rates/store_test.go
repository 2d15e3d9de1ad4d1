package rates

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/dynamotest"
)

const ratesTable = "rates-table"

func newTestStore() (*Store, *dynamotest.Fake) {
	f := dynamotest.New().
		CreateTable(ratesTable, "rate_id").
		AddIndex(ratesTable, KindIndex, "kind", "created_ms")
	s := NewStore(f, ratesTable)

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s, f
}

func activeCount(f *dynamotest.Fake) int {
	n := 0
	for _, it := range f.Items(ratesTable) {
		if b, ok := it["is_active"].(*types.AttributeValueMemberBOOL); ok && b.Value {
			n++
		}
	}
	return n
}

// bumpPointer simulates another writer moving the active record.
func bumpPointer(f *dynamotest.Fake) {
	it := f.Item(ratesTable, currentID)
	if it == nil {
		return
	}
	v, _ := strconv.ParseInt(it["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	it["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(v+1, 10)}
	f.Put(ratesTable, it)
}

func TestCurrent_NothingRecorded(t *testing.T) {
	s, _ := newTestStore()

	rec, err := s.Current(context.Background())
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if !rec.IsZero() || rec.GoldRate != 0 || rec.SilverRate != 0 {
		t.Fatalf("expected zero fallback record, got %+v", rec)
	}
	if rec.Currency != CurrencyINR || rec.Unit != UnitGram {
		t.Fatalf("fallback must still carry its denomination: %+v", rec)
	}
}

func TestRecord_ThenCurrent(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	first, err := s.Record(ctx, NewRecord{Gold: 6000, Silver: 80, UpdatedBy: "admin-1"})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	cur, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if cur.RateID != first.RateID || cur.GoldRate != 6000 || cur.SilverRate != 80 || !cur.IsActive {
		t.Fatalf("Current = %+v, want the just-recorded values", cur)
	}

	for i, pair := range [][2]float64{{6100, 81}, {6050, 79.5}, {6200, 82}} {
		if _, err := s.Record(ctx, NewRecord{Gold: pair[0], Silver: pair[1]}); err != nil {
			t.Fatalf("Record %d error: %v", i, err)
		}
		if n := activeCount(f); n != 1 {
			t.Fatalf("after record %d: %d active records, want exactly 1", i, n)
		}
	}
	cur, _ = s.Current(ctx)
	if cur.GoldRate != 6200 || cur.SilverRate != 82 {
		t.Fatalf("Current = %+v, want the last recorded values", cur)
	}
}

func TestRecord_RejectsBadRates(t *testing.T) {
	s, f := newTestStore()
	for _, in := range []NewRecord{
		{Gold: -1, Silver: 80},
		{Gold: 6000, Silver: math.NaN()},
		{Gold: math.Inf(1), Silver: 80},
	} {
		if _, err := s.Record(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Record(%+v) = %v, want ErrValidation", in, err)
		}
	}
	if f.Calls("TransactWriteItems") != 0 {
		t.Fatal("invalid rates must not reach the store")
	}
}

func TestRecord_RetriesLostRace(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()
	if _, err := s.Record(ctx, NewRecord{Gold: 6000, Silver: 80}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	raced := false
	f.BeforeWrite = func(op string) {
		if op == "TransactWriteItems" && !raced {
			raced = true
			bumpPointer(f)
		}
	}
	rec, err := s.Record(ctx, NewRecord{Gold: 6100, Silver: 81})
	if err != nil {
		t.Fatalf("Record after one lost race: %v", err)
	}
	if f.Calls("TransactWriteItems") != 3 {
		t.Fatalf("expected seed + failed + retried transaction, got %d", f.Calls("TransactWriteItems"))
	}
	cur, _ := s.Current(ctx)
	if cur.RateID != rec.RateID || activeCount(f) != 1 {
		t.Fatalf("retry did not leave a single active record: %+v", cur)
	}
}

func TestRecord_ConflictAfterRetries(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()
	if _, err := s.Record(ctx, NewRecord{Gold: 6000, Silver: 80}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.BeforeWrite = func(op string) { bumpPointer(f) }

	_, err := s.Record(ctx, NewRecord{Gold: 6100, Silver: 81})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if activeCount(f) != 1 {
		t.Fatal("failed attempts must not change the active record")
	}
}

func TestHistory(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		if _, err := s.Record(ctx, NewRecord{Gold: float64(6000 + i), Silver: 80}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err := s.History(ctx, 3)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].GoldRate != 6004 || list[2].GoldRate != 6002 {
		t.Fatalf("expected most recent first, got %v, %v", list[0].GoldRate, list[2].GoldRate)
	}
	if !list[0].IsActive || list[1].IsActive {
		t.Fatal("only the newest record should be active")
	}

	if _, err := s.History(ctx, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("History(0) = %v, want ErrValidation", err)
	}
}
