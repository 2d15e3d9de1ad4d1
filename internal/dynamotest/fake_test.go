package dynamotest

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestPutItem_Conditions(t *testing.T) {
	f := New().CreateTable("t", "id")
	ctx := context.Background()

	put := func(cond string, item map[string]types.AttributeValue, vals map[string]types.AttributeValue) error {
		in := &dyn.PutItemInput{TableName: aws.String("t"), Item: item, ExpressionAttributeValues: vals}
		if cond != "" {
			in.ConditionExpression = aws.String(cond)
			in.ExpressionAttributeNames = map[string]string{"#v": "version"}
		}
		_, err := f.PutItem(ctx, in)
		return err
	}

	if err := put("attribute_not_exists(id)", map[string]types.AttributeValue{"id": s("a"), "version": n("1")}, nil); err != nil {
		t.Fatalf("first put: %v", err)
	}
	err := put("attribute_not_exists(id)", map[string]types.AttributeValue{"id": s("a")}, nil)
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		t.Fatalf("expected conditional failure, got %v", err)
	}
	if err := put("#v = :expected", map[string]types.AttributeValue{"id": s("a"), "version": n("2")}, map[string]types.AttributeValue{":expected": n("1")}); err != nil {
		t.Fatalf("cas put: %v", err)
	}
	err = put("#v = :expected", map[string]types.AttributeValue{"id": s("a"), "version": n("3")}, map[string]types.AttributeValue{":expected": n("1")})
	if !errors.As(err, &ccf) {
		t.Fatalf("stale cas should fail, got %v", err)
	}
}

func TestTransactWriteItems_AllOrNothing(t *testing.T) {
	f := New().CreateTable("t", "id")
	f.Put("t", map[string]types.AttributeValue{"id": s("taken")})

	_, err := f.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String("t"), Item: map[string]types.AttributeValue{"id": s("new")}}},
			{Put: &types.Put{TableName: aws.String("t"), Item: map[string]types.AttributeValue{"id": s("taken")}, ConditionExpression: aws.String("attribute_not_exists(id)")}},
		},
	})
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if got := aws.ToString(tce.CancellationReasons[1].Code); got != "ConditionalCheckFailed" {
		t.Fatalf("reason[1] = %s", got)
	}
	if f.Item("t", "new") != nil {
		t.Fatal("no item may be written when the transaction is cancelled")
	}
}

func TestQuery_IndexOrderLimitAndFilter(t *testing.T) {
	f := New().CreateTable("t", "id").AddIndex("t", "by-user", "user", "ts")
	for _, it := range []struct{ id, user, ts, kind string }{
		{"1", "u1", "100", "a"}, {"2", "u1", "300", "b"}, {"3", "u2", "200", "a"}, {"4", "u1", "200", "a"},
	} {
		f.Put("t", map[string]types.AttributeValue{"id": s(it.id), "user": s(it.user), "ts": n(it.ts), "kind": s(it.kind)})
	}
	f.Put("t", map[string]types.AttributeValue{"id": s("no-index")})

	out, err := f.Query(context.Background(), &dyn.QueryInput{
		TableName:                 aws.String("t"),
		IndexName:                 aws.String("by-user"),
		KeyConditionExpression:    aws.String("#u = :u AND ts >= :since"),
		FilterExpression:          aws.String("kind = :k"),
		ExpressionAttributeNames:  map[string]string{"#u": "user"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": s("u1"), ":since": n("150"), ":k": s("a")},
		ScanIndexForward:          aws.Bool(false),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0]["id"].(*types.AttributeValueMemberS).Value != "4" {
		t.Fatalf("unexpected items: %v", out.Items)
	}

	out, err = f.Query(context.Background(), &dyn.QueryInput{
		TableName:                 aws.String("t"),
		IndexName:                 aws.String("by-user"),
		KeyConditionExpression:    aws.String("#u = :u"),
		ExpressionAttributeNames:  map[string]string{"#u": "user"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": s("u1")},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(2),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out.Items) != 2 || out.LastEvaluatedKey == nil {
		t.Fatalf("expected a limited page with a continuation key, got %d items", len(out.Items))
	}
	if out.Items[0]["id"].(*types.AttributeValueMemberS).Value != "2" {
		t.Fatalf("expected newest first, got %v", out.Items[0]["id"])
	}
}

func TestUpdateItem_SetRemove(t *testing.T) {
	f := New().CreateTable("t", "id")
	f.Put("t", map[string]types.AttributeValue{"id": s("a"), "status": s("old"), "note": s("x")})

	out, err := f.UpdateItem(context.Background(), &dyn.UpdateItemInput{
		TableName:                 aws.String("t"),
		Key:                       map[string]types.AttributeValue{"id": s("a")},
		UpdateExpression:          aws.String("SET #s = :new, updated_at = :ua REMOVE note"),
		ConditionExpression:       aws.String("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":new": s("new"), ":ua": s("now"), ":expected": s("old")},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Attributes["status"].(*types.AttributeValueMemberS).Value != "new" {
		t.Fatalf("status not updated: %v", out.Attributes)
	}
	if _, ok := out.Attributes["note"]; ok {
		t.Fatal("note should be removed")
	}
}
