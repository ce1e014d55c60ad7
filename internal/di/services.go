package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/mcvqe/internal/config"
	"github.com/aristath/mcvqe/internal/events"
	mcvqehandlers "github.com/aristath/mcvqe/internal/modules/mcvqe/handlers"
	"github.com/aristath/mcvqe/internal/modules/runs"
	"github.com/aristath/mcvqe/internal/reliability"
)

// InitializeServices builds the event bus, run repository, archiver, run
// service and HTTP handler. Runs left unfinished by a previous process are
// marked failed first.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.RunsDB == nil {
		return fmt.Errorf("container with runs database required")
	}

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.RunRepo = runs.NewRepository(container.RunsDB.Conn(), log)
	interrupted, err := container.RunRepo.FailInterrupted()
	if err != nil {
		return err
	}
	if interrupted > 0 {
		log.Warn().Int64("runs", interrupted).Msg("Marked interrupted runs as failed")
	}

	// A nil *RunArchiver must not reach the service as a non-nil interface
	var archiver runs.Archiver
	if cfg.Archive.Bucket != "" {
		runArchiver, err := newRunArchiver(ctx, cfg.Archive, container.EventManager, log)
		if err != nil {
			return err
		}
		container.RunArchiver = runArchiver
		archiver = runArchiver
	}

	container.RunService = runs.NewService(container.RunRepo, container.EventManager, archiver, RunDefaults(cfg), log)
	container.MCVQEHandler = mcvqehandlers.NewHandler(container.RunService, container.EventBus, log)
	return nil
}

// RunDefaults converts the configured run defaults into service settings
func RunDefaults(cfg *config.Config) runs.Settings {
	return runs.Settings{
		Optimizer:     cfg.Runs.Optimizer,
		MaxIterations: cfg.Runs.MaxIterations,
		Gradient:      cfg.Runs.Gradient,
		Shots:         cfg.Runs.Shots,
		Seed:          cfg.Runs.Seed,
		Workers:       cfg.Runs.Workers,
	}
}

func newRunArchiver(ctx context.Context, cfg config.ArchiveConfig, emitter reliability.Emitter, log zerolog.Logger) (*reliability.RunArchiver, error) {
	client, err := reliability.NewS3Client(ctx, reliability.ArchiveConfig{
		Bucket:          cfg.Bucket,
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Prefix:          cfg.Prefix,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive client: %w", err)
	}
	log.Info().Str("bucket", cfg.Bucket).Msg("Run archival enabled")
	return reliability.NewRunArchiver(client, cfg.Bucket, cfg.Prefix, emitter, log), nil
}
