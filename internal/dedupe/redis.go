// Package dedupe tracks already-processed gateway receipt identifiers so
// duplicate callback deliveries do not re-append system notes.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// receiptTTL bounds how long a receipt id is remembered. Gateway retry
// storms resolve within minutes; a day is generous.
const receiptTTL = 24 * time.Hour

// Store remembers receipt ids in redis. A nil Store is valid and treats
// every receipt as first-seen, which degrades to the harmless
// duplicate-note behavior.
type Store struct {
	client *redis.Client
}

// New connects a dedupe store to the redis instance at addr.
func New(addr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client; used by tests with miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// FirstSeen records the receipt id and reports whether this is its first
// delivery. On redis errors it reports true: re-applying an idempotent
// transition is safer than dropping a real payment confirmation.
func (s *Store) FirstSeen(ctx context.Context, receiptID string) bool {
	if s == nil || s.client == nil || receiptID == "" {
		return true
	}

	ok, err := s.client.SetNX(ctx, "receipt:"+receiptID, 1, receiptTTL).Result()
	if err != nil {
		return true
	}
	return ok
}
