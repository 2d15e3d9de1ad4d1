package rates

import "time"

// Explicit denomination of every rate.
const (
	CurrencyINR = "INR"
	UnitGram    = "gram"
)

// Where the rates used to price an order came from.
const (
	SourceFeed  = "feed"
	SourceStore = "store"
)

const (
	currentID  = "current" // pointer item
	recordKind = "rate"    // partition of KindIndex
)

// Record is one recorded pair of gold and silver prices per gram.
type Record struct {
	RateID     string    `dynamodbav:"rate_id" json:"id"` // PK
	GoldRate   float64   `dynamodbav:"gold_rate" json:"goldRate"`
	SilverRate float64   `dynamodbav:"silver_rate" json:"silverRate"`
	Currency   string    `dynamodbav:"currency" json:"currency"`
	Unit       string    `dynamodbav:"unit" json:"unit"`
	Notes      string    `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	UpdatedBy  string    `dynamodbav:"updated_by,omitempty" json:"updatedBy,omitempty"`
	IsActive   bool      `dynamodbav:"is_active" json:"isActive"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"createdAt"`
	Kind       string    `dynamodbav:"kind" json:"-"`
	CreatedMs  int64     `dynamodbav:"created_ms" json:"-"` // GSI sort key
	Seq        int64     `dynamodbav:"seq" json:"-"`        // pointer version that activated it
}

// IsZero reports whether r is the fallback returned when nothing was ever
// recorded.
func (r Record) IsZero() bool { return r.RateID == "" }

func zeroRecord() Record {
	return Record{Currency: CurrencyINR, Unit: UnitGram}
}

// pointer is the single item naming the active record. Its version
// serializes concurrent Record calls.
type pointer struct {
	RateID   string `dynamodbav:"rate_id"`
	ActiveID string `dynamodbav:"active_id"`
	Version  int64  `dynamodbav:"version"`
}

// Quote is the pair of rates used to price a new order.
type Quote struct {
	Gold     float64
	Silver   float64
	RateID   string // empty when the quote came straight from the feed
	Source   string
	Fallback bool // a configured feed failed and the stored record was used
}

// NewRecord is the input of Store.Record.
type NewRecord struct {
	Gold      float64
	Silver    float64
	Notes     string
	UpdatedBy string
}
