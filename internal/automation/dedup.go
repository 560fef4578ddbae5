package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore suppresses duplicate sends for the same lifecycle event and
// rule. The outbox may redeliver an event whose MarkDelivered failed, so the
// dispatcher claims a (event, rule) key before sending; a second delivery
// attempt finds the key and skips the send.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupStore creates a redis-backed suppression store. A nil client
// disables suppression (every claim succeeds).
func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupStore{client: client, ttl: ttl}
}

// Claim atomically claims the (event, rule) pair, returning false when a
// prior attempt already claimed it.
func (d *DedupStore) Claim(ctx context.Context, eventID string, ruleID int64) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	key := fmt.Sprintf("automation:dispatched:%s:%d", eventID, ruleID)
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("automation: claim dispatch: %w", err)
	}
	return ok, nil
}
