package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/imrishuroy/go-jewelry-orders/internal/dynamotest"
)

const usersTable = "users-table"

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	f := dynamotest.New().CreateTable(usersTable, "user_id")
	s := NewStore(f, usersTable)
	ctx := context.Background()

	u, err := s.GetOrCreate(ctx, Identity{ID: "u-1", Email: "asha@example.com", Name: "Asha"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if u.Role != RoleCustomer || u.Name != "Asha" {
		t.Fatalf("unexpected user: %+v", u)
	}

	again, err := s.GetOrCreate(ctx, Identity{ID: "u-1", Name: "Changed"})
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if again.Name != "Asha" || !again.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("existing user must be returned unchanged, got %+v", again)
	}
	if len(f.Items(usersTable)) != 1 {
		t.Fatalf("expected exactly one stored user, got %d", len(f.Items(usersTable)))
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	f := dynamotest.New().CreateTable(usersTable, "user_id")
	s := NewStore(f, usersTable)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrCreate(context.Background(), Identity{ID: "u-2", Role: RoleAdmin}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent GetOrCreate: %v", err)
	}
	if len(f.Items(usersTable)) != 1 {
		t.Fatal("concurrent first calls must converge on one user")
	}
}

func TestGet_Missing(t *testing.T) {
	s := NewStore(dynamotest.New().CreateTable(usersTable, "user_id"), usersTable)
	u, err := s.Get(context.Background(), "nobody")
	if err != nil || u != nil {
		t.Fatalf("Get missing = %+v, %v; want nil, nil", u, err)
	}
}

func TestGetOrCreate_StoreError(t *testing.T) {
	f := dynamotest.New().CreateTable(usersTable, "user_id")
	f.FailNext("PutItem", errors.New("throttled"))
	s := NewStore(f, usersTable)

	if _, err := s.GetOrCreate(context.Background(), Identity{ID: "u-3"}); err == nil {
		t.Fatal("expected the store error to surface")
	}
	if _, err := s.GetOrCreate(context.Background(), Identity{}); err == nil {
		t.Fatal("expected an error for an identity without subject")
	}
}

// readRecorder captures GetItem inputs on top of the fake.
type readRecorder struct {
	*dynamotest.Fake
	reads []*dyn.GetItemInput
}

func (r *readRecorder) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	r.reads = append(r.reads, in)
	return r.Fake.GetItem(ctx, in, optFns...)
}

func TestGet_IsConsistentRead(t *testing.T) {
	rec := &readRecorder{Fake: dynamotest.New().CreateTable(usersTable, "user_id")}
	s := NewStore(rec, usersTable)
	ctx := context.Background()

	if _, err := s.GetOrCreate(ctx, Identity{ID: "u-1"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	u, err := s.Get(ctx, "u-1")
	if err != nil || u == nil {
		t.Fatalf("Get = %+v, %v", u, err)
	}
	if len(rec.reads) == 0 {
		t.Fatal("no GetItem recorded")
	}
	for _, in := range rec.reads {
		if in.ConsistentRead == nil || !*in.ConsistentRead {
			t.Fatalf("GetItem without ConsistentRead: %+v", in)
		}
	}
}
