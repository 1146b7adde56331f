package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/openctemio/ingest/internal/app/purge"
	"github.com/openctemio/ingest/internal/app/sbomingest"
	"github.com/openctemio/ingest/internal/app/store"
	"github.com/openctemio/ingest/internal/config"
	"github.com/openctemio/ingest/internal/infra/artifacts"
	opshttp "github.com/openctemio/ingest/internal/infra/http"
	"github.com/openctemio/ingest/internal/infra/jobs"
	"github.com/openctemio/ingest/internal/infra/postgres"
	"github.com/openctemio/ingest/internal/infra/redis"
	"github.com/openctemio/ingest/internal/tracing"
	"github.com/openctemio/ingest/pkg/logger"
)

// reportReadyTTL bounds how long consumers can poll a stored group marker.
const reportReadyTTL = 24 * time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion worker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorker(cmd.Context())
	},
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting ingest worker", "env", cfg.App.Env, "version", version)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	services, jobClient, err := buildServices(cfg, db, redisClient, log)
	if err != nil {
		return err
	}
	defer jobClient.Close()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, services.groups, services.purger, log)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Purge.Schedule, func() {
		if err := jobClient.EnqueueScanPurge(context.Background()); err != nil {
			log.Error("failed to schedule purge run", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", cfg.Purge.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ops := opshttp.NewServer(cfg.Server, map[string]opshttp.Pinger{
		"postgres": db,
		"redis":    redisClient,
	}, log)
	go func() {
		if err := ops.Start(); err != nil {
			log.Error("operational listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Warn("operational listener shutdown", "error", err)
		}
	}()

	err = worker.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("ingest worker stopped")
	return nil
}

// services bundles the application services the worker dispatches to.
type services struct {
	groups *store.StoreGroupedScansService
	purger *purge.PurgeScansService
}

func buildServices(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, log *logger.Logger) (*services, *jobs.Client, error) {
	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:        cfg.Redis.Addr(),
		RedisPassword:    cfg.Redis.Password,
		RedisDB:          cfg.Redis.DB,
		SearchSyncPerSec: cfg.Worker.SearchSyncPerSec,
		SearchSyncBurst:  cfg.Worker.SearchSyncBurst,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build job client: %w", err)
	}

	scanRepo := postgres.NewScanRepository(db)
	findingRepo := postgres.NewFindingRepository(db)

	chain, err := sbomingest.NewChain(sbomingest.Repos{
		Components:                postgres.NewComponentRepository(db),
		ComponentVersions:         postgres.NewComponentVersionRepository(db),
		SourcePackages:            postgres.NewSourcePackageRepository(db),
		Sources:                   postgres.NewSourceRepository(db),
		Occurrences:               postgres.NewOccurrenceRepository(db),
		OccurrenceVulnerabilities: postgres.NewOccurrenceVulnerabilityRepository(db),
		PackageLicenses:           postgres.NewPackageLicenseRepository(db),
		Vulnerabilities:           postgres.NewVulnerabilityRepository(db),
	}, sbomingest.NewLicenseResolver(postgres.NewPackageLicenseRepository(db)), jobClient, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build sbom chain: %w", err)
	}

	findingsSvc, err := store.NewStoreFindingsService(scanRepo, findingRepo, cfg.Ingest.FindingsBatchSize, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build findings service: %w", err)
	}
	sbomSvc := store.NewStoreSbomFindingsService(findingsSvc, findingRepo, chain, log)

	leaseManager, err := redis.NewLeaseManager(redisClient, log, cfg.Ingest.LeaseTTL, cfg.Ingest.LeaseRetryDelay, cfg.Ingest.LeaseRetryLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("build lease manager: %w", err)
	}
	state, err := redis.NewIngestState(redisClient, reportReadyTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("build ingest state: %w", err)
	}

	groups, err := store.NewStoreGroupedScansService(
		scanRepo,
		artifacts.NewStore(cfg.S3, log),
		leaseAdapter{leaseManager},
		state,
		jobClient,
		findingsSvc,
		sbomSvc,
		log,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build group service: %w", err)
	}

	checkpoints, err := redis.NewCheckpointStore(redisClient, cfg.Purge.CheckpointTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("build checkpoint store: %w", err)
	}
	purger, err := purge.NewPurgeScansService(scanRepo, checkpoints, purge.Config{
		MaxAge:    cfg.Purge.MaxAge,
		BatchSize: cfg.Purge.BatchSize,
		MaxPerRun: cfg.Purge.MaxPerRun,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("build purge service: %w", err)
	}

	return &services{groups: groups, purger: purger}, jobClient, nil
}

// leaseAdapter narrows the redis lease manager to the store service's view.
type leaseAdapter struct {
	m *redis.LeaseManager
}

func (a leaseAdapter) Acquire(ctx context.Context, key string) (store.Lease, error) {
	return a.m.Acquire(ctx, key)
}
