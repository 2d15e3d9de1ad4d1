package rates

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
)

// KindIndex lists records newest first; the pointer item has no kind and
// stays out of it.
const KindIndex = "kind-created_ms-index"

const (
	recordAttempts  = 3
	maxHistoryLimit = 100
)

// Store keeps rate records in DynamoDB. At most one record is active; the
// pointer item names it.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	newID     func() string
}

// NewStore creates a rates Store over tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Current returns the active record, or the zero-rate fallback when none
// has been recorded yet.
func (s *Store) Current(ctx context.Context) (Record, error) {
	ptr, err := s.pointer(ctx)
	if err != nil {
		return Record{}, err
	}
	if ptr == nil || ptr.ActiveID == "" {
		return zeroRecord(), nil
	}
	rec, err := s.get(ctx, ptr.ActiveID)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return zeroRecord(), nil
	}
	return *rec, nil
}

// Record stores a new active record and deactivates the previous one in a
// single transaction. The pointer's version guards against a concurrent
// Record; a lost race is retried with fresh reads.
func (s *Store) Record(ctx context.Context, in NewRecord) (Record, error) {
	if err := validateRate("gold", in.Gold); err != nil {
		return Record{}, err
	}
	if err := validateRate("silver", in.Silver); err != nil {
		return Record{}, err
	}

	for attempt := 0; attempt < recordAttempts; attempt++ {
		ptr, err := s.pointer(ctx)
		if err != nil {
			return Record{}, err
		}

		now := s.nowFunc().UTC()
		rec := Record{
			RateID:     s.newID(),
			GoldRate:   in.Gold,
			SilverRate: in.Silver,
			Currency:   CurrencyINR,
			Unit:       UnitGram,
			Notes:      in.Notes,
			UpdatedBy:  in.UpdatedBy,
			IsActive:   true,
			CreatedAt:  now,
			Kind:       recordKind,
			CreatedMs:  now.UnixMilli(),
			Seq:        1,
		}
		if ptr != nil {
			rec.Seq = ptr.Version + 1
		}
		items, err := s.recordItems(rec, ptr)
		if err != nil {
			return Record{}, err
		}

		_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
		if err == nil {
			return rec, nil
		}
		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) {
			return Record{}, fmt.Errorf("transact write: %w", err)
		}
	}
	return Record{}, fmt.Errorf("%w: active rate changed concurrently %d times", apperr.ErrConflict, recordAttempts)
}

func (s *Store) recordItems(rec Record, ptr *pointer) ([]types.TransactWriteItem, error) {
	recMap, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal rate record: %w", err)
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                recMap,
			ConditionExpression: awsString("attribute_not_exists(rate_id)"),
		},
	}}

	next := pointer{RateID: currentID, ActiveID: rec.RateID, Version: rec.Seq}
	ptrPut := &types.Put{
		TableName:           &s.tableName,
		ConditionExpression: awsString("attribute_not_exists(rate_id)"),
	}
	if ptr != nil {
		ptrPut.ConditionExpression = awsString("#v = :expected")
		ptrPut.ExpressionAttributeNames = map[string]string{"#v": "version"}
		ptrPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(ptr.Version, 10)},
		}
		if ptr.ActiveID != "" {
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName:           &s.tableName,
					Key:                 rateKey(ptr.ActiveID),
					UpdateExpression:    awsString("SET is_active = :inactive"),
					ConditionExpression: awsString("is_active = :active"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":inactive": &types.AttributeValueMemberBOOL{Value: false},
						":active":   &types.AttributeValueMemberBOOL{Value: true},
					},
				},
			})
		}
	}
	ptrMap, err := attributevalue.MarshalMap(next)
	if err != nil {
		return nil, fmt.Errorf("marshal rate pointer: %w", err)
	}
	ptrPut.Item = ptrMap
	return append(items, types.TransactWriteItem{Put: ptrPut}), nil
}

// History returns up to limit records, most recent first.
func (s *Store) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", apperr.ErrValidation)
	}
	limit = min(limit, maxHistoryLimit)

	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(KindIndex),
		KeyConditionExpression:   awsString("#k = :kind"),
		ExpressionAttributeNames: map[string]string{"#k": "kind"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: recordKind},
		},
		ScanIndexForward: awsBool(false),
		Limit:            awsInt32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query rate history: %w", err)
	}
	list := []Record{}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal rate history: %w", err)
	}
	return list, nil
}

func (s *Store) pointer(ctx context.Context) (*pointer, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            rateKey(currentID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get rate pointer: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p pointer
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal rate pointer: %w", err)
	}
	return &p, nil
}

func (s *Store) get(ctx context.Context, id string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            rateKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get rate record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal rate record: %w", err)
	}
	return &r, nil
}

func validateRate(metal string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s rate must be a finite number >= 0", apperr.ErrValidation, metal)
	}
	return nil
}

func rateKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"rate_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
