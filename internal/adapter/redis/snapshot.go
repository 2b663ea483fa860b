// Package redis persists the dashboard snapshot slot in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
	"github.com/go-redis/redis/v8"
)

// Snapshots stores each slot as a plain string key without expiry.
type Snapshots struct {
	c *redis.Client
}

// NewClient connects to addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// NewSnapshots wraps an existing client.
func NewSnapshots(c *redis.Client) *Snapshots { return &Snapshots{c: c} }

// Ping checks the connection.
func (s *Snapshots) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}

// Save overwrites the slot named key.
func (s *Snapshots) Save(ctx context.Context, key string, data []byte) error {
	if err := s.c.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load reads the slot named key. An absent slot yields store.ErrNoSnapshot.
func (s *Snapshots) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return data, nil
}

// Close closes the underlying client.
func (s *Snapshots) Close() error { return s.c.Close() }
