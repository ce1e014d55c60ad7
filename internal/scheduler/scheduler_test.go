package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/aristath/mcvqe/internal/modules/runs"
	testingpkg "github.com/aristath/mcvqe/internal/testing"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string {
	if j.name == "" {
		return "counting"
	}
	return j.name
}

type stubPruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (p *stubPruner) DeleteOlderThan(cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.deleted, p.err
}

type stubRotator struct {
	days int
	err  error
}

func (r *stubRotator) RotateArchives(ctx context.Context, retentionDays int) (int, error) {
	r.days = retentionDays
	return 0, r.err
}

type stubCheckpointer struct {
	modes []string
}

func (c *stubCheckpointer) WALCheckpoint(mode string) error {
	c.modes = append(c.modes, mode)
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testLogger())

	require.NoError(t, s.AddJob("0 30 3 * * *", &countingJob{}))
	assert.Error(t, s.AddJob("not a schedule", &countingJob{name: "broken"}))
	assert.Error(t, s.AddJob("@every 1m", &countingJob{}), "names are unique")
	assert.Equal(t, 1, s.Entries())

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "counting", jobs[0].Name)
	assert.Equal(t, "0 30 3 * * *", jobs[0].Schedule)
	assert.Zero(t, jobs[0].Runs)
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(testLogger())
	job := &countingJob{err: errors.New("failures are logged, not fatal")}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.GreaterOrEqual(t, jobs[0].Runs, 1)
	assert.Equal(t, "failures are logged, not fatal", jobs[0].LastError)
	assert.False(t, jobs[0].LastRun.IsZero())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(testLogger())
	fails := &countingJob{name: "fails", err: errors.New("boom")}
	ok := &countingJob{name: "ok"}
	require.NoError(t, s.AddJob("0 0 4 * * SUN", fails))
	require.NoError(t, s.AddJob("0 0 2 * * *", ok))

	require.NoError(t, s.RunNow("ok"))
	assert.EqualError(t, s.RunNow("fails"), "boom")
	assert.Error(t, s.RunNow("missing"))

	assert.Equal(t, int32(1), ok.runs.Load())
	assert.Equal(t, int32(1), fails.runs.Load())

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "fails", jobs[0].Name)
	assert.Equal(t, "boom", jobs[0].LastError)
	assert.Equal(t, "ok", jobs[1].Name)
	assert.Empty(t, jobs[1].LastError)
	assert.Equal(t, 1, jobs[1].Runs)
	assert.False(t, jobs[1].NextRun.IsZero())
}

func TestRetentionJob_Run(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	t.Run("prunes, checkpoints and announces", func(t *testing.T) {
		pruner := &stubPruner{deleted: 4}
		rotator := &stubRotator{}
		db := &stubCheckpointer{}
		emitter := &testingpkg.RecordingEmitter{}

		job := NewRetentionJob(RetentionJobConfig{
			Runs: pruner, Archives: rotator, DB: db, Emitter: emitter, RetentionDays: 30,
		}, testLogger())
		job.now = func() time.Time { return now }

		require.NoError(t, job.Run())
		assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), pruner.cutoff)
		assert.Equal(t, []string{"TRUNCATE"}, db.modes)
		assert.Equal(t, 30, rotator.days)

		require.Equal(t, []events.EventType{events.RunsPruned}, emitter.Types())
		data := emitter.Events()[0].Data.(*events.RunsPrunedData)
		assert.Equal(t, int64(4), data.Deleted)
	})

	t.Run("nothing deleted stays quiet", func(t *testing.T) {
		db := &stubCheckpointer{}
		emitter := &testingpkg.RecordingEmitter{}
		job := NewRetentionJob(RetentionJobConfig{
			Runs: &stubPruner{}, DB: db, Emitter: emitter, RetentionDays: 7,
		}, testLogger())

		require.NoError(t, job.Run())
		assert.Empty(t, db.modes)
		assert.Empty(t, emitter.Events())
	})

	t.Run("disabled", func(t *testing.T) {
		pruner := &stubPruner{}
		job := NewRetentionJob(RetentionJobConfig{Runs: pruner}, testLogger())
		require.NoError(t, job.Run())
		assert.True(t, pruner.cutoff.IsZero())
	})

	t.Run("prune error fails the job", func(t *testing.T) {
		job := NewRetentionJob(RetentionJobConfig{
			Runs: &stubPruner{err: errors.New("locked")}, RetentionDays: 1,
		}, testLogger())
		assert.Error(t, job.Run())
	})

	t.Run("archive rotation error is tolerated", func(t *testing.T) {
		job := NewRetentionJob(RetentionJobConfig{
			Runs: &stubPruner{}, Archives: &stubRotator{err: errors.New("offline")}, RetentionDays: 1,
		}, testLogger())
		assert.NoError(t, job.Run())
	})
}

func TestRetentionJob_WithRepository(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "runs")
	defer cleanup()

	repo := runs.NewRepository(db.Conn(), testLogger())
	opts := mcvqe.DefaultOptions()
	opts.NChromophores = 2
	opts.Sites = testingpkg.NewSiteFixtures(2)

	require.NoError(t, repo.Create("finished", opts, "grid"))
	require.NoError(t, repo.Fail("finished", errors.New("backend down")))
	require.NoError(t, repo.Create("active", opts, "grid"))

	job := NewRetentionJob(RetentionJobConfig{Runs: repo, DB: db, RetentionDays: 30}, testLogger())
	job.now = func() time.Time { return time.Now().AddDate(0, 0, 60) }
	require.NoError(t, job.Run())

	_, err := repo.Get("finished")
	assert.ErrorIs(t, err, runs.ErrNotFound)
	_, err = repo.Get("active")
	assert.NoError(t, err)
}
