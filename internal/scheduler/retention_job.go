package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mcvqe/internal/events"
)

// RunPruner deletes finished runs created before cutoff.
type RunPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// ArchiveRotator deletes archived payloads older than a retention window.
type ArchiveRotator interface {
	RotateArchives(ctx context.Context, retentionDays int) (int, error)
}

// Checkpointer truncates the write-ahead log after large deletes.
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// Emitter publishes typed events.
type Emitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// RetentionJobConfig holds the collaborators of a RetentionJob. Archives, DB
// and Emitter are optional.
type RetentionJobConfig struct {
	Runs          RunPruner
	Archives      ArchiveRotator
	DB            Checkpointer
	Emitter       Emitter
	RetentionDays int
}

// RetentionJob prunes completed and failed runs older than the retention window.
type RetentionJob struct {
	cfg RetentionJobConfig
	now func() time.Time
	log zerolog.Logger
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(cfg RetentionJobConfig, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		cfg: cfg,
		now: time.Now,
		log: log.With().Str("job", "run_retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Run executes the retention job. A non-positive window keeps everything.
func (j *RetentionJob) Run() error {
	days := j.cfg.RetentionDays
	if days <= 0 {
		j.log.Debug().Msg("Retention disabled")
		return nil
	}

	cutoff := j.now().AddDate(0, 0, -days)
	deleted, err := j.cfg.Runs.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}

	j.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Pruned old runs")

	if deleted > 0 {
		if j.cfg.DB != nil {
			if err := j.cfg.DB.WALCheckpoint("TRUNCATE"); err != nil {
				j.log.Warn().Err(err).Msg("WAL checkpoint after prune failed")
			}
		}
		if j.cfg.Emitter != nil {
			j.cfg.Emitter.EmitTyped(events.RunsPruned, "scheduler", &events.RunsPrunedData{
				Deleted: deleted,
				Cutoff:  cutoff,
			})
		}
	}

	if j.cfg.Archives != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		// Best effort: the run store is already pruned
		if _, err := j.cfg.Archives.RotateArchives(ctx, days); err != nil {
			j.log.Warn().Err(err).Msg("Archive rotation failed")
		}
	}

	return nil
}
