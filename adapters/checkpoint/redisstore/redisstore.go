// Package redisstore implements checkpoint.Store over Redis (spec §6,
// SPEC_FULL §11.3): one string key per thread, holding the latest opaque
// snapshot. Grounded on the teacher's registry.resultStreamManager, which
// talks to *redis.Client directly with Set/Get and translates redis.Nil into
// a package-level not-found sentinel rather than wrapping a richer client.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coriolis-labs/conductor/checkpoint"
)

const defaultKeyPrefix = "conductor:checkpoint:"

// Options configures the Redis-backed checkpoint store.
type Options struct {
	Client *redis.Client
	// KeyPrefix namespaces checkpoint keys; defaults to "conductor:checkpoint:".
	KeyPrefix string
	// TTL expires a checkpoint after this duration of inactivity. Zero means
	// no expiry — snapshots persist until overwritten.
	TTL time.Duration
}

// Store implements checkpoint.Store by delegating to a Redis client.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ checkpoint.Store = (*Store)(nil)

// New returns a Store backed by opts.Client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Store{client: opts.Client, keyPrefix: keyPrefix, ttl: opts.TTL}, nil
}

func (s *Store) key(threadID string) string {
	return s.keyPrefix + threadID
}

// Get implements checkpoint.Store.
func (s *Store) Get(ctx context.Context, threadID string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get %s: %w", threadID, err)
	}
	return data, true, nil
}

// Put implements checkpoint.Store. A successful write refreshes the TTL
// (if configured) on every call, so an actively-running thread never expires
// mid-turn.
func (s *Store) Put(ctx context.Context, threadID string, snapshot []byte) error {
	if err := s.client.Set(ctx, s.key(threadID), snapshot, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: put %s: %w", threadID, err)
	}
	return nil
}
