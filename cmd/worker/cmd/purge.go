package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openctemio/ingest/internal/app/purge"
	"github.com/openctemio/ingest/internal/config"
	"github.com/openctemio/ingest/internal/infra/postgres"
	"github.com/openctemio/ingest/internal/infra/redis"
	"github.com/openctemio/ingest/pkg/logger"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run a single scan purge pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

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

		checkpoints, err := redis.NewCheckpointStore(redisClient, cfg.Purge.CheckpointTTL)
		if err != nil {
			return fmt.Errorf("build checkpoint store: %w", err)
		}
		svc, err := purge.NewPurgeScansService(postgres.NewScanRepository(db), checkpoints, purge.Config{
			MaxAge:    cfg.Purge.MaxAge,
			BatchSize: cfg.Purge.BatchSize,
			MaxPerRun: cfg.Purge.MaxPerRun,
		}, log)
		if err != nil {
			return fmt.Errorf("build purge service: %w", err)
		}
		return svc.Execute(cmd.Context())
	},
}
