// Package dynamotest provides an in-memory DynamoDB stand-in for unit tests.
//
// It implements the client subset in internal/aws and understands the small
// expression dialect the stores emit: conditions made of comparisons,
// attribute_exists/attribute_not_exists joined with AND/OR (no parentheses),
// key conditions of the same shape, and SET/REMOVE update expressions with
// plain assignments.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type index struct {
	pk string
	sk string
}

type table struct {
	pk      string
	items   map[string]map[string]types.AttributeValue
	indexes map[string]index
}

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int
	fail   map[string]error

	// BeforeWrite, when set, runs before every write operation is applied,
	// outside the lock. Tests use it to interleave a competing writer.
	BeforeWrite func(op string)
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		tables: map[string]*table{},
		calls:  map[string]int{},
		fail:   map[string]error{},
	}
}

// CreateTable registers a table keyed by a single string partition key.
func (f *Fake) CreateTable(name, pk string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{pk: pk, items: map[string]map[string]types.AttributeValue{}, indexes: map[string]index{}}
	return f
}

// AddIndex registers a global secondary index. sk may be empty.
func (f *Fake) AddIndex(tableName, name, pk, sk string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mustTable(tableName).indexes[name] = index{pk: pk, sk: sk}
	return f
}

// FailNext makes the next call to op ("GetItem", "PutItem", ...) return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls reports how many times op has been invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.mustTable(tableName).items[key]
	if !ok {
		return nil
	}
	return clone(it)
}

// Items returns copies of every item in a table.
func (f *Fake) Items(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	out := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, k := range sortedKeys(t.items) {
		out = append(out, clone(t.items[k]))
	}
	return out
}

// Put stores an item directly, bypassing conditions.
func (f *Fake) Put(tableName string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(tableName)
	t.items[keyOf(item, t.pk)] = clone(item)
}

func (f *Fake) mustTable(name string) *table {
	t, ok := f.tables[name]
	if !ok {
		panic(fmt.Sprintf("dynamotest: table %q not created", name))
	}
	return t
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return err
	}
	return nil
}

func (f *Fake) beforeWrite(op string) {
	if hook := f.BeforeWrite; hook != nil {
		hook(op)
	}
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(aws.ToString(in.TableName))
	item, ok := t.items[keyOf(in.Key, t.pk)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.beforeWrite("PutItem")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(aws.ToString(in.TableName))
	key := keyOf(in.Item, t.pk)
	if key == "" {
		return nil, errors.New("dynamotest: put item without partition key")
	}
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), t.items[key], in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t.items[key] = clone(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.beforeWrite("UpdateItem")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t := f.mustTable(aws.ToString(in.TableName))
	key := keyOf(in.Key, t.pk)
	current := t.items[key]
	ok, err := evalCondition(aws.ToString(in.ConditionExpression), current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	next, err := applyUpdate(aws.ToString(in.UpdateExpression), current, in.Key, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.items[key] = next
	return &dyn.UpdateItemOutput{Attributes: clone(next)}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.beforeWrite("TransactWriteItems")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(in.TransactItems) > 100 {
		return nil, errors.New("dynamotest: transaction exceeds 100 items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		var (
			ok  bool
			err error
		)
		switch {
		case it.Put != nil:
			t := f.mustTable(aws.ToString(it.Put.TableName))
			ok, err = evalCondition(aws.ToString(it.Put.ConditionExpression), t.items[keyOf(it.Put.Item, t.pk)], it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues)
		case it.Update != nil:
			t := f.mustTable(aws.ToString(it.Update.TableName))
			ok, err = evalCondition(aws.ToString(it.Update.ConditionExpression), t.items[keyOf(it.Update.Key, t.pk)], it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
		case it.ConditionCheck != nil:
			t := f.mustTable(aws.ToString(it.ConditionCheck.TableName))
			ok, err = evalCondition(aws.ToString(it.ConditionCheck.ConditionExpression), t.items[keyOf(it.ConditionCheck.Key, t.pk)], it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues)
		case it.Delete != nil:
			t := f.mustTable(aws.ToString(it.Delete.TableName))
			ok, err = evalCondition(aws.ToString(it.Delete.ConditionExpression), t.items[keyOf(it.Delete.Key, t.pk)], it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues)
		default:
			return nil, errors.New("dynamotest: empty transact item")
		}
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		} else {
			failed = true
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed"), Message: aws.String("The conditional request failed")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			t := f.mustTable(aws.ToString(it.Put.TableName))
			t.items[keyOf(it.Put.Item, t.pk)] = clone(it.Put.Item)
		case it.Update != nil:
			t := f.mustTable(aws.ToString(it.Update.TableName))
			key := keyOf(it.Update.Key, t.pk)
			next, err := applyUpdate(aws.ToString(it.Update.UpdateExpression), t.items[key], it.Update.Key, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			t.items[key] = next
		case it.Delete != nil:
			t := f.mustTable(aws.ToString(it.Delete.TableName))
			delete(t.items, keyOf(it.Delete.Key, t.pk))
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t := f.mustTable(aws.ToString(in.TableName))
	idx := index{pk: t.pk}
	if name := aws.ToString(in.IndexName); name != "" {
		var ok bool
		if idx, ok = t.indexes[name]; !ok {
			return nil, fmt.Errorf("dynamotest: unknown index %q", name)
		}
	}

	var matched []map[string]types.AttributeValue
	for _, k := range sortedKeys(t.items) {
		item := t.items[k]
		if _, ok := item[idx.pk]; !ok {
			continue
		}
		if idx.sk != "" {
			if _, ok := item[idx.sk]; !ok {
				continue
			}
		}
		ok, err := evalCondition(aws.ToString(in.KeyConditionExpression), item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, item)
		}
	}
	if idx.sk != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return compare(matched[i][idx.sk], matched[j][idx.sk]) < 0
		})
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	page, last, err := f.page(t, idx, matched, in.ExclusiveStartKey, in.Limit, aws.ToString(in.FilterExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t := f.mustTable(aws.ToString(in.TableName))
	all := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, k := range sortedKeys(t.items) {
		all = append(all, t.items[k])
	}
	page, last, err := f.page(t, index{pk: t.pk}, all, in.ExclusiveStartKey, in.Limit, aws.ToString(in.FilterExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

// page applies ExclusiveStartKey, Limit (evaluated before the filter, as
// DynamoDB does) and the filter expression.
func (f *Fake) page(t *table, idx index, items []map[string]types.AttributeValue, start map[string]types.AttributeValue, limit *int32, filter string, names map[string]string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
	if len(start) > 0 {
		startKey := keyOf(start, t.pk)
		for i, it := range items {
			if keyOf(it, t.pk) == startKey {
				items = items[i+1:]
				break
			}
		}
	}

	var last map[string]types.AttributeValue
	if limit != nil && int(*limit) < len(items) {
		items = items[:*limit]
		lastItem := items[len(items)-1]
		last = map[string]types.AttributeValue{t.pk: lastItem[t.pk]}
		for _, attr := range []string{idx.pk, idx.sk} {
			if attr != "" {
				last[attr] = lastItem[attr]
			}
		}
	}

	out := make([]map[string]types.AttributeValue, 0, len(items))
	for _, it := range items {
		ok, err := evalCondition(filter, it, names, values)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			out = append(out, clone(it))
		}
	}
	return out, last, nil
}

func keyOf(item map[string]types.AttributeValue, pk string) string {
	switch v := item[pk].(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolveName(path string, names map[string]string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "#") {
		if n, ok := names[path]; ok {
			return n
		}
	}
	return path
}
