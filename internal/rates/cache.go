package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const currentCacheKey = "rates:current"

// Cache holds the current record between Record calls. Set must keep an
// entry whose Seq is higher than r's, so a reader that loaded the store
// before a concurrent Record cannot put the superseded record back.
type Cache interface {
	Get(ctx context.Context) (*Record, error) // nil, nil on miss
	Set(ctx context.Context, r Record) error
	Invalidate(ctx context.Context) error
}

// setIfNewer writes ARGV[1] unless the cached entry has a higher seq.
// ARGV[2] is the new seq, ARGV[3] the TTL in milliseconds (0 = none).
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, obj = pcall(cjson.decode, cur)
	if ok and type(obj) == 'table' and tonumber(obj.seq) and tonumber(obj.seq) > tonumber(ARGV[2]) then
		return 0
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisCache stores the current record as JSON under one key.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache returns a cache over rdb; ttl 0 keeps entries until the
// next Record invalidates them.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (c *RedisCache) Get(ctx context.Context) (*Record, error) {
	data, err := c.rdb.Get(ctx, currentCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var r cachedRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode cached rate: %w", err)
	}
	rec := Record(r)
	return &rec, nil
}

func (c *RedisCache) Set(ctx context.Context, r Record) error {
	data, err := json.Marshal(cachedRecord(r))
	if err != nil {
		return fmt.Errorf("encode cached rate: %w", err)
	}
	err = setIfNewer.Run(ctx, c.rdb, []string{currentCacheKey}, string(data), r.Seq, c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, currentCacheKey).Err()
}

// cachedRecord keeps every field, including the ones hidden from API JSON.
type cachedRecord struct {
	RateID     string    `json:"rate_id"`
	GoldRate   float64   `json:"gold_rate"`
	SilverRate float64   `json:"silver_rate"`
	Currency   string    `json:"currency"`
	Unit       string    `json:"unit"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	Kind       string    `json:"kind"`
	CreatedMs  int64     `json:"created_ms"`
	Seq        int64     `json:"seq"`
}
