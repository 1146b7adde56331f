package redis

import (
	"context"
	"errors"
	"time"

	"github.com/openctemio/ingest/pkg/domain/scan"
)

const purgeCursorKey = "scans"

// CheckpointStore persists the purge cursor between runs so an interrupted
// purge resumes where it stopped instead of rescanning from the start.
type CheckpointStore struct {
	cache *Cache[scan.Checkpoint]
}

// NewCheckpointStore creates a checkpoint store. The TTL should comfortably
// exceed the purge schedule interval; an expired checkpoint just means the
// next run starts from the beginning.
func NewCheckpointStore(client *Client, ttl time.Duration) (*CheckpointStore, error) {
	cache, err := NewCache[scan.Checkpoint](client, "purge:cursor", ttl)
	if err != nil {
		return nil, err
	}
	return &CheckpointStore{cache: cache}, nil
}

// Load returns the persisted cursor, or a zero checkpoint when none exists.
func (s *CheckpointStore) Load(ctx context.Context) (scan.Checkpoint, error) {
	cp, err := s.cache.Get(ctx, purgeCursorKey)
	if errors.Is(err, ErrCacheMiss) {
		return scan.Checkpoint{}, nil
	}
	if err != nil {
		return scan.Checkpoint{}, err
	}
	return *cp, nil
}

// Save persists the cursor.
func (s *CheckpointStore) Save(ctx context.Context, cp scan.Checkpoint) error {
	return s.cache.Set(ctx, purgeCursorKey, cp)
}

// Clear removes the cursor after a completed run.
func (s *CheckpointStore) Clear(ctx context.Context) error {
	return s.cache.Delete(ctx, purgeCursorKey)
}
