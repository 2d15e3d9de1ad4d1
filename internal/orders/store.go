package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/idempotency"
)

// Secondary indexes on the orders table.
const (
	UserIndex   = "user_id-created_ms-index"
	StatusIndex = "status-created_ms-index"
)

// maxTransactItems is the DynamoDB limit per TransactWriteItems call.
const maxTransactItems = 100

// Store errors. The service maps them onto the apperr taxonomy.
var (
	ErrNumberTaken        = errors.New("order number already taken")
	ErrOrderExists        = errors.New("order id already exists")
	ErrIdempotencyKeyUsed = errors.New("idempotency key already used")
	ErrVersionMismatch    = errors.New("version mismatch/conditional failed")
)

// Tables names the tables the store writes to. Idempotency may be empty
// when creation never carries a key.
type Tables struct {
	Orders      string
	Numbers     string
	Idempotency string
}

// Store encapsulates operations on the orders table.
type Store struct {
	client aws.DynamoDBAPI
	tables Tables
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

// numberGuard reserves an order number; the table's key makes it unique.
type numberGuard struct {
	OrderNumber string    `dynamodbav:"order_number"`
	OrderID     string    `dynamodbav:"order_id"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
}

// Create atomically writes, in one transaction:
//   - the order (attribute_not_exists(order_id))
//   - the order-number guard (attribute_not_exists(order_number))
//   - the idempotency record when rec is non-nil (attribute_not_exists(idempotency_key))
//
// A failed condition is reported as ErrOrderExists, ErrNumberTaken or
// ErrIdempotencyKeyUsed so the caller can tell a retryable number collision
// from a replayed request.
func (s *Store) Create(ctx context.Context, o *Order, rec *idempotency.IdempotencyRecord) error {
	o.CreatedMs = o.CreatedAt.UnixMilli()
	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	guardMap, err := attributevalue.MarshalMap(numberGuard{OrderNumber: o.OrderNumber, OrderID: o.OrderID, CreatedAt: o.CreatedAt})
	if err != nil {
		return fmt.Errorf("marshal order number: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tables.Orders,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tables.Numbers,
				Item:                guardMap,
				ConditionExpression: awsString("attribute_not_exists(order_number)"),
			},
		},
	}
	if rec != nil {
		if s.tables.Idempotency == "" {
			return errors.New("idempotency table not configured")
		}
		idempMap, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return fmt.Errorf("marshal idempotency item: %w", err)
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.tables.Idempotency,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		failed := failedConditions(tce)
		switch {
		case failed[2]:
			return ErrIdempotencyKeyUsed
		case failed[1]:
			return ErrNumberTaken
		case failed[0]:
			return ErrOrderExists
		}
		return fmt.Errorf("transaction canceled: %w", err)
	}
	return fmt.Errorf("transact write: %w", err)
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Orders,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Save replaces the order if the stored version still equals o.Version,
// then bumps o.Version. Returns ErrVersionMismatch if another writer got
// there first.
func (s *Store) Save(ctx context.Context, o *Order) error {
	put, err := s.casPut(o)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrVersionMismatch
		}
		return fmt.Errorf("put item: %w", err)
	}
	o.Version++
	return nil
}

// SaveAll applies Save semantics to every order in a single transaction:
// either all versions match and every order is written, or nothing is.
func (s *Store) SaveAll(ctx context.Context, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	if len(list) > maxTransactItems {
		return fmt.Errorf("save all: %d orders exceed the %d item transaction limit", len(list), maxTransactItems)
	}
	transactItems := make([]types.TransactWriteItem, 0, len(list))
	for _, o := range list {
		put, err := s.casPut(o)
		if err != nil {
			return err
		}
		transactItems = append(transactItems, types.TransactWriteItem{Put: put})
	}
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && len(failedConditions(tce)) > 0 {
			return ErrVersionMismatch
		}
		return fmt.Errorf("transact write: %w", err)
	}
	for _, o := range list {
		o.Version++
	}
	return nil
}

// casPut builds the conditional put for o at version o.Version+1.
func (s *Store) casPut(o *Order) (*types.Put, error) {
	next := *o
	next.Version = o.Version + 1
	next.CreatedMs = next.CreatedAt.UnixMilli()
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return &types.Put{
		TableName:                &s.tables.Orders,
		Item:                     item,
		ConditionExpression:      awsString("#v = :expected"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(o.Version, 10)},
		},
	}, nil
}

// ListQuery selects the access path for List. UserID wins over Status.
type ListQuery struct {
	UserID string
	Status Status // empty means every status
	Since  time.Time
}

// List returns every order matching q, newest first. A user scope queries
// the user index, a concrete status queries the status index, anything else
// scans. Since is pushed down to DynamoDB as a created_ms bound.
func (s *Store) List(ctx context.Context, q ListQuery) ([]Order, error) {
	values := map[string]types.AttributeValue{}
	names := map[string]string{}
	var since string
	if !q.Since.IsZero() {
		values[":since"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(q.Since.UnixMilli(), 10)}
		since = " AND created_ms >= :since"
	}

	var items []map[string]types.AttributeValue
	switch {
	case q.UserID != "" || q.Status != "":
		in := &dyn.QueryInput{
			TableName:        &s.tables.Orders,
			ScanIndexForward: awsBool(false),
		}
		if q.UserID != "" {
			in.IndexName = awsString(UserIndex)
			in.KeyConditionExpression = awsString("user_id = :pk" + since)
			values[":pk"] = &types.AttributeValueMemberS{Value: q.UserID}
			if q.Status != "" {
				in.FilterExpression = awsString("#s = :status")
				names["#s"] = "status"
				values[":status"] = &types.AttributeValueMemberS{Value: string(q.Status)}
			}
		} else {
			in.IndexName = awsString(StatusIndex)
			in.KeyConditionExpression = awsString("#s = :pk" + since)
			names["#s"] = "status"
			values[":pk"] = &types.AttributeValueMemberS{Value: string(q.Status)}
		}
		if len(names) > 0 {
			in.ExpressionAttributeNames = names
		}
		in.ExpressionAttributeValues = values

		p := dyn.NewQueryPaginator(s.client, in)
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("query orders: %w", err)
			}
			items = append(items, out.Items...)
		}
	default:
		in := &dyn.ScanInput{TableName: &s.tables.Orders}
		if since != "" {
			in.FilterExpression = awsString("created_ms >= :since")
			in.ExpressionAttributeValues = values
		}
		p := dyn.NewScanPaginator(s.client, in)
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("scan orders: %w", err)
			}
			items = append(items, out.Items...)
		}
	}

	var list []Order
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	return list, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// failedConditions returns the positions of the transaction items whose
// condition failed.
func failedConditions(tce *types.TransactionCanceledException) map[int]bool {
	failed := map[int]bool{}
	for i, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			failed[i] = true
		}
	}
	return failed
}

func isConditionalFailure(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
