// Package users keeps the profile snapshot of every identity that has
// called the API.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
)

// Roles carried by bearer tokens.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is what the identity provider asserts about the caller.
type Identity struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// User is the item stored in the users table.
type User struct {
	UserID    string    `dynamodbav:"user_id" json:"id"` // PK
	Email     string    `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Name      string    `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Role      string    `dynamodbav:"role" json:"role"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// IsAdmin reports whether u may use the admin API.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// Store reads and creates users.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a users Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// GetOrCreate returns the stored user for id.ID, creating it from id on
// first sight. Concurrent first calls converge on a single item.
func (s *Store) GetOrCreate(ctx context.Context, id Identity) (*User, error) {
	if id.ID == "" {
		return nil, errors.New("identity without subject")
	}
	role := id.Role
	if role == "" {
		role = RoleCustomer
	}
	u := User{
		UserID:    id.ID,
		Email:     id.Email,
		Name:      id.Name,
		Role:      role,
		CreatedAt: s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(user_id)"),
	})
	if err == nil {
		return &u, nil
	}
	if !isConditionalFailure(err) {
		return nil, fmt.Errorf("put user: %w", err)
	}

	existing, err := s.Get(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("user %s vanished after conditional put", id.ID)
	}
	// The token is authoritative for the role.
	existing.Role = role
	return existing, nil
}

// Get fetches a user by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		// orders read the user right after AuthRequired created it
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func isConditionalFailure(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
