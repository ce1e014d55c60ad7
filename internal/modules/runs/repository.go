package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository handles run storage in runs.db. Options and results are kept
// as msgpack blobs; the columns hold what List filters and sorts on.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new runs repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Create stores a pending run for opts.
func (r *Repository) Create(id string, opts mcvqe.Options, optimizerName string) error {
	payload, err := msgpack.Marshal(&opts)
	if err != nil {
		return fmt.Errorf("failed to encode options for run %s: %w", id, err)
	}

	now := time.Now().UnixMilli()
	_, err = r.db.Exec(`
		INSERT INTO runs (id, created_at, updated_at, status, n_chromophores, n_states, cyclic, optimizer, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, now, now, StatusPending, opts.NChromophores, opts.States(), boolToInt(opts.Cyclic), optimizerName, payload)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", id, err)
	}

	r.log.Debug().Str("run_id", id).Msg("Run created")
	return nil
}

// MarkRunning moves a pending run to running.
func (r *Repository) MarkRunning(id string) error {
	return r.update(id, `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, time.Now().UnixMilli(), id)
}

// Complete stores the result of a finished run.
func (r *Repository) Complete(id string, result *mcvqe.Result) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for run %s: %w", id, err)
	}
	return r.update(id, `UPDATE runs SET status = ?, updated_at = ?, average_energy = ?, payload = ?, error = NULL WHERE id = ?`,
		StatusCompleted, time.Now().UnixMilli(), result.AverageEnergy, payload, id)
}

// Fail records the error that stopped a run.
func (r *Repository) Fail(id string, runErr error) error {
	return r.update(id, `UPDATE runs SET status = ?, updated_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UnixMilli(), runErr.Error(), id)
}

func (r *Repository) update(id, query string, args ...interface{}) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the run with its options and result.
func (r *Repository) Get(id string) (*Run, error) {
	var (
		run                  Run
		createdAt, updatedAt int64
		cyclic               int
		energy               sql.NullFloat64
		runErr               sql.NullString
		optionsBlob, resBlob []byte
	)
	err := r.db.QueryRow(`
		SELECT id, created_at, updated_at, status, n_chromophores, n_states, cyclic, optimizer,
		       average_energy, error, options, payload
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &createdAt, &updatedAt, &run.Status, &run.NChromophores, &run.NStates, &cyclic,
		&run.Optimizer, &energy, &runErr, &optionsBlob, &resBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	run.CreatedAt = time.UnixMilli(createdAt)
	run.UpdatedAt = time.UnixMilli(updatedAt)
	run.Cyclic = cyclic != 0
	run.Error = runErr.String
	if energy.Valid {
		run.AverageEnergy = &energy.Float64
	}
	if len(optionsBlob) > 0 {
		run.Options = &mcvqe.Options{}
		if err := msgpack.Unmarshal(optionsBlob, run.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options of run %s: %w", id, err)
		}
	}
	if len(resBlob) > 0 {
		run.Result = &mcvqe.Result{}
		if err := msgpack.Unmarshal(resBlob, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %s: %w", id, err)
		}
	}
	return &run, nil
}

// Payload returns the raw msgpack result of a completed run.
func (r *Repository) Payload(id string) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRow(`SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payload of run %s: %w", id, err)
	}
	return payload, nil
}

// List returns the newest runs first. status filters when non-empty;
// limit <= 0 means no limit.
func (r *Repository) List(status Status, limit int) ([]Summary, error) {
	query := `SELECT id, created_at, status, n_chromophores, n_states, cyclic, optimizer, average_energy, error FROM runs`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var (
			s         Summary
			createdAt int64
			cyclic    int
			energy    sql.NullFloat64
			runErr    sql.NullString
		)
		if err := rows.Scan(&s.ID, &createdAt, &s.Status, &s.NChromophores, &s.NStates, &cyclic, &s.Optimizer, &energy, &runErr); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan run row")
			continue
		}
		s.CreatedAt = time.UnixMilli(createdAt)
		s.Cyclic = cyclic != 0
		s.Error = runErr.String
		if energy.Valid {
			v := energy.Float64
			s.AverageEnergy = &v
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return summaries, nil
}

// DeleteOlderThan removes finished runs created before cutoff and returns
// how many were deleted. Pending and running runs are kept.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM runs WHERE created_at < ? AND status IN (?, ?)`,
		cutoff.UnixMilli(), StatusCompleted, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Old runs deleted")
	}
	return n, nil
}

// FailInterrupted marks runs left pending or running by a previous process as failed.
func (r *Repository) FailInterrupted() (int64, error) {
	res, err := r.db.Exec(`UPDATE runs SET status = ?, updated_at = ?, error = ? WHERE status IN (?, ?)`,
		StatusFailed, time.Now().UnixMilli(), "interrupted by shutdown", StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
