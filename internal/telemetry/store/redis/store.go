package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docguard/internal/telemetry"
	id "docguard/pkg/domain"
)

const (
	keyPrefix  = "docguard:telemetry:"
	defaultTTL = 24 * time.Hour
)

// Store appends records to one Redis list per session. Lists expire so that
// diagnostics never outlive their retention window.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *Store) Append(ctx context.Context, rec telemetry.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry record: %w", err)
	}
	k := key(rec.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, payload)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append telemetry record: %w", err)
	}
	return nil
}

func (s *Store) ListBySession(ctx context.Context, sessionID id.SessionID) ([]telemetry.Record, error) {
	raw, err := s.client.LRange(ctx, key(sessionID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list telemetry records: %w", err)
	}
	out := make([]telemetry.Record, 0, len(raw))
	for _, item := range raw {
		var rec telemetry.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal telemetry record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
