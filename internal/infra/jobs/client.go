package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client      *asynq.Client
	syncLimiter *rate.Limiter
	logger      *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// SearchSyncPerSec and SearchSyncBurst throttle search sync
	// enqueues. A large SBOM can touch thousands of vulnerabilities;
	// the limiter keeps that from flooding the indexing queue.
	SearchSyncPerSec float64
	SearchSyncBurst  int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if cfg.SearchSyncPerSec <= 0 {
		return nil, fmt.Errorf("search sync rate must be positive")
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client:      client,
		syncLimiter: rate.NewLimiter(rate.Limit(cfg.SearchSyncPerSec), cfg.SearchSyncBurst),
		logger:      log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueReportGroup enqueues a report group store job.
func (c *Client) EnqueueReportGroup(ctx context.Context, payload ReportGroupPayload) error {
	task, err := NewReportGroupTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue report group store",
			"pipeline_id", payload.PipelineID,
			"report_type", payload.ReportType,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("report group store queued",
		"task_id", info.ID,
		"pipeline_id", payload.PipelineID,
		"report_type", payload.ReportType,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueScanPurge enqueues a scan purge job.
func (c *Client) EnqueueScanPurge(ctx context.Context) error {
	info, err := c.client.EnqueueContext(ctx, NewScanPurgeTask())
	if err != nil {
		c.logger.Error("failed to enqueue scan purge", "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan purge queued", "task_id", info.ID, "queue", info.Queue)
	return nil
}

// EnqueueVulnerabilitySearchSync enqueues a rate-limited search index sync
// for the given vulnerabilities.
func (c *Client) EnqueueVulnerabilitySearchSync(ctx context.Context, ids []shared.ID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.syncLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("search sync rate limit: %w", err)
	}

	payload := SearchSyncPayload{VulnerabilityIDs: make([]string, len(ids))}
	for i, id := range ids {
		payload.VulnerabilityIDs[i] = id.String()
	}

	task, err := NewSearchSyncTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue search sync",
			"vulnerabilities", len(ids),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("vulnerability search sync queued",
		"task_id", info.ID,
		"vulnerabilities", len(ids),
	)
	return nil
}

// EnqueueSecretRevocationScan enqueues a revocation check for newly stored
// secret detection findings.
func (c *Client) EnqueueSecretRevocationScan(ctx context.Context, projectID, pipelineID shared.ID) error {
	task, err := NewRevocationScanTask(RevocationScanPayload{
		ProjectID:  projectID.String(),
		PipelineID: pipelineID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue secret revocation scan",
			"pipeline_id", pipelineID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("secret revocation scan queued",
		"task_id", info.ID,
		"pipeline_id", pipelineID.String(),
		"queue", info.Queue,
	)
	return nil
}
