package idempotency

import "time"

// Status values for idempotency entries. A record is written IN_PROGRESS
// together with its order and becomes DONE once the response is stored.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK, scoped as <user>#<key>
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// ScopedKey namespaces a client-supplied key by the caller so two customers
// can never collide on the same header value.
func ScopedKey(userID, key string) string {
	return userID + "#" + key
}
