// Package dedup provides a redis-backed fast-path filter for webhook
// redeliveries. It is advisory only: the unique index on the contact store
// remains the correctness mechanism, the filter just sheds duplicate load
// before it reaches the database.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/norrbit/leadbridge/pkg/logging"
)

const keyPrefix = "leadbridge:lead:"

// Filter remembers lead ids whose contact-store outcome is settled.
type Filter struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// New creates a filter. A nil client yields a disabled filter that reports
// every lead as unseen and marks nothing.
func New(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *Filter {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Filter{rdb: rdb, ttl: ttl, logger: logger}
}

// Seen reports whether the lead id was already marked as processed. It does
// not mark: a lead becomes seen only via Mark, after the contact store has
// settled it, so a transient store failure leaves the id unseen and a
// redelivery retries it. Redis failures fail open: the lead is reported
// unseen and the duplicate check falls through to the database constraint.
func (f *Filter) Seen(ctx context.Context, leadID string) bool {
	if f == nil || f.rdb == nil || leadID == "" {
		return false
	}
	n, err := f.rdb.Exists(ctx, keyPrefix+leadID).Result()
	if err != nil {
		f.logger.Warn("dedup: redis check failed, proceeding", "lead_id", leadID, "error", err)
		return false
	}
	return n > 0
}

// Mark records the lead id as processed for the filter's TTL. Callers invoke
// it only once the contact store has either created the contact or confirmed
// it as a duplicate; never on a failed create.
func (f *Filter) Mark(ctx context.Context, leadID string) {
	if f == nil || f.rdb == nil || leadID == "" {
		return
	}
	if err := f.rdb.Set(ctx, keyPrefix+leadID, 1, f.ttl).Err(); err != nil {
		f.logger.Warn("dedup: redis mark failed", "lead_id", leadID, "error", err)
	}
}
