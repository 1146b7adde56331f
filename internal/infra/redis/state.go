package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/ingest/pkg/domain/shared"
)

// IngestState records pipeline-level ingestion markers consumers poll to
// learn that a report group finished storing.
type IngestState struct {
	client *Client
	ttl    time.Duration
}

// NewIngestState creates an ingestion state store.
func NewIngestState(client *Client, ttl time.Duration) (*IngestState, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("TTL must be positive")
	}
	return &IngestState{client: client, ttl: ttl}, nil
}

func readyKey(pipelineID shared.ID, reportType string) string {
	return fmt.Sprintf("reports_ready:%s:%s", pipelineID, reportType)
}

// MarkReady flags the pipeline's report group as fully stored.
func (s *IngestState) MarkReady(ctx context.Context, pipelineID shared.ID, reportType string) error {
	key := readyKey(pipelineID, reportType)
	if err := s.client.client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("mark reports ready %s: %w", key, err)
	}
	return nil
}

// IsReady reports whether the group finished storing.
func (s *IngestState) IsReady(ctx context.Context, pipelineID shared.ID, reportType string) (bool, error) {
	n, err := s.client.client.Exists(ctx, readyKey(pipelineID, reportType)).Result()
	if err != nil {
		return false, fmt.Errorf("check reports ready: %w", err)
	}
	return n > 0, nil
}

// ClearReady removes the marker, typically before re-ingesting a group.
func (s *IngestState) ClearReady(ctx context.Context, pipelineID shared.ID, reportType string) error {
	if err := s.client.client.Del(ctx, readyKey(pipelineID, reportType)).Err(); err != nil {
		return fmt.Errorf("clear reports ready: %w", err)
	}
	return nil
}
