package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openctemio/ingest/internal/app/purge"
	"github.com/openctemio/ingest/internal/app/store"
	"github.com/openctemio/ingest/internal/metrics"
	"github.com/openctemio/ingest/pkg/domain/scan"
	"github.com/openctemio/ingest/pkg/domain/shared"
	"github.com/openctemio/ingest/pkg/logger"
)

// SearchSyncProcessor re-indexes vulnerabilities in the search backend.
type SearchSyncProcessor interface {
	SyncVulnerabilities(ctx context.Context, ids []shared.ID) error
}

// RevocationScanProcessor checks newly detected secrets for revocation.
type RevocationScanProcessor interface {
	RunRevocationScan(ctx context.Context, projectID, pipelineID shared.ID) error
}

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// WorkerOption is a functional option for configuring the Worker.
type WorkerOption func(*Worker)

// WithSearchSyncProcessor adds a search sync processor to the worker.
func WithSearchSyncProcessor(processor SearchSyncProcessor) WorkerOption {
	return func(w *Worker) {
		w.searchSync = processor
	}
}

// WithRevocationScanProcessor adds a revocation scan processor to the worker.
func WithRevocationScanProcessor(processor RevocationScanProcessor) WorkerOption {
	return func(w *Worker) {
		w.revocation = processor
	}
}

// Worker processes background jobs.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	logger     *logger.Logger
	searchSync SearchSyncProcessor
	revocation RevocationScanProcessor
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, groups *store.StoreGroupedScansService, purger *purge.PurgeScansService, log *logger.Logger, opts ...WorkerOption) (*Worker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"ingest":      10,
				"default":     5,
				"indexing":    3,
				"maintenance": 2,
			},
		},
	)

	mux := asynq.NewServeMux()

	w := &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}

	for _, opt := range opts {
		opt(w)
	}

	handler := newIngestTaskHandler(groups, purger, log)
	mux.HandleFunc(TypeReportGroupStore, instrument(TypeReportGroupStore, handler.HandleReportGroup))
	mux.HandleFunc(TypeScanPurge, instrument(TypeScanPurge, handler.HandleScanPurge))

	if w.searchSync != nil {
		syncHandler := newSearchSyncTaskHandler(w.searchSync, log)
		mux.HandleFunc(TypeVulnerabilitySearchSync, instrument(TypeVulnerabilitySearchSync, syncHandler.HandleSearchSync))
		log.Info("search sync task handler registered")
	}
	if w.revocation != nil {
		revocationHandler := newRevocationTaskHandler(w.revocation, log)
		mux.HandleFunc(TypeSecretRevocationScan, instrument(TypeSecretRevocationScan, revocationHandler.HandleRevocationScan))
		log.Info("revocation scan task handler registered")
	}

	return w, nil
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}

// Run runs the worker until shutdown.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	}
}

// instrument wraps a handler with processing metrics.
func instrument(taskType string, h asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := h(ctx, t)
		status := "succeeded"
		if err != nil {
			status = "failed"
		}
		metrics.JobsProcessedTotal.WithLabelValues(taskType, status).Inc()
		metrics.JobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		return err
	}
}

// ingestTaskHandler handles report group store and purge tasks.
type ingestTaskHandler struct {
	groups *store.StoreGroupedScansService
	purger *purge.PurgeScansService
	logger *logger.Logger
}

func newIngestTaskHandler(groups *store.StoreGroupedScansService, purger *purge.PurgeScansService, log *logger.Logger) *ingestTaskHandler {
	return &ingestTaskHandler{
		groups: groups,
		purger: purger,
		logger: log.With("handler", "ingest_tasks"),
	}
}

// HandleReportGroup processes a report group store task. A held lease fails
// the task so asynq redelivers it after the backoff, by which time the
// holder has usually finished.
func (h *ingestTaskHandler) HandleReportGroup(ctx context.Context, t *asynq.Task) error {
	var payload ReportGroupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	in, err := groupInputFromPayload(payload)
	if err != nil {
		h.logger.Error("rejecting malformed report group task", "error", err)
		// Malformed payloads never become valid; retrying is waste.
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	h.logger.Info("processing report group",
		"pipeline_id", payload.PipelineID,
		"report_type", payload.ReportType,
		"artifacts", len(payload.ArtifactKeys),
	)

	if err := h.groups.Execute(ctx, in); err != nil {
		h.logger.Error("failed to store report group",
			"pipeline_id", payload.PipelineID,
			"report_type", payload.ReportType,
			"error", err,
		)
		return err
	}
	return nil
}

// HandleScanPurge processes a scheduled scan purge task.
func (h *ingestTaskHandler) HandleScanPurge(ctx context.Context, t *asynq.Task) error {
	h.logger.Info("processing scan purge run")
	if err := h.purger.Execute(ctx); err != nil {
		h.logger.Error("scan purge run failed", "error", err)
		return err
	}
	return nil
}

func groupInputFromPayload(payload ReportGroupPayload) (*store.GroupInput, error) {
	projectID, err := shared.IDFromString(payload.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project id: %w", err)
	}
	organizationID, err := shared.IDFromString(payload.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("organization id: %w", err)
	}
	pipelineID, err := shared.IDFromString(payload.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("pipeline id: %w", err)
	}
	reportType, err := scan.ParseReportType(payload.ReportType)
	if err != nil {
		return nil, err
	}

	return &store.GroupInput{
		ProjectID:      projectID,
		OrganizationID: organizationID,
		PipelineID:     pipelineID,
		CommitSHA:      payload.CommitSHA,
		ReportType:     reportType,
		ArtifactKeys:   payload.ArtifactKeys,
		TraversalIDs:   payload.TraversalIDs,
	}, nil
}

// searchSyncTaskHandler handles vulnerability search sync tasks.
type searchSyncTaskHandler struct {
	processor SearchSyncProcessor
	logger    *logger.Logger
}

func newSearchSyncTaskHandler(processor SearchSyncProcessor, log *logger.Logger) *searchSyncTaskHandler {
	return &searchSyncTaskHandler{
		processor: processor,
		logger:    log.With("handler", "search_sync_tasks"),
	}
}

// HandleSearchSync processes a vulnerability search sync task.
func (h *searchSyncTaskHandler) HandleSearchSync(ctx context.Context, t *asynq.Task) error {
	var payload SearchSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	ids := make([]shared.ID, 0, len(payload.VulnerabilityIDs))
	for _, raw := range payload.VulnerabilityIDs {
		id, err := shared.IDFromString(raw)
		if err != nil {
			h.logger.Warn("skipping malformed vulnerability id", "id", raw)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := h.processor.SyncVulnerabilities(ctx, ids); err != nil {
		h.logger.Error("failed to sync vulnerabilities", "count", len(ids), "error", err)
		return err
	}
	return nil
}

// revocationTaskHandler handles secret revocation scan tasks.
type revocationTaskHandler struct {
	processor RevocationScanProcessor
	logger    *logger.Logger
}

func newRevocationTaskHandler(processor RevocationScanProcessor, log *logger.Logger) *revocationTaskHandler {
	return &revocationTaskHandler{
		processor: processor,
		logger:    log.With("handler", "revocation_tasks"),
	}
}

// HandleRevocationScan processes a secret revocation scan task.
func (h *revocationTaskHandler) HandleRevocationScan(ctx context.Context, t *asynq.Task) error {
	var payload RevocationScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	projectID, err := shared.IDFromString(payload.ProjectID)
	if err != nil {
		return fmt.Errorf("%w: project id: %w", asynq.SkipRetry, err)
	}
	pipelineID, err := shared.IDFromString(payload.PipelineID)
	if err != nil {
		return fmt.Errorf("%w: pipeline id: %w", asynq.SkipRetry, err)
	}

	if err := h.processor.RunRevocationScan(ctx, projectID, pipelineID); err != nil {
		h.logger.Error("revocation scan failed", "pipeline_id", payload.PipelineID, "error", err)
		return err
	}
	return nil
}
