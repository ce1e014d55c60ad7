// Package scheduler runs periodic background jobs (retention pruning and
// run-store maintenance) on a cron schedule.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus reports the schedule and last outcome of a registered job.
type JobStatus struct {
	Name       string    `json:"name"`
	Schedule   string    `json:"schedule"`
	NextRun    time.Time `json:"next_run,omitempty"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Runs       int       `json:"runs"`
}

type entry struct {
	id     cron.EntryID
	job    Job
	status JobStatus
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a new scheduler. Schedules use the six-field form with seconds.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     log.With().Str("component", "scheduler").Logger(),
		entries: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under its name on a cron schedule. Names are unique.
// Schedule examples:
//   - "0 30 3 * * *"  - 03:30 every day
//   - "0 0 4 * * SUN" - 04:00 on Sundays
//   - "@every 30s"    - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	name := job.Name()
	s.mu.Lock()
	_, exists := s.entries[name]
	s.mu.Unlock()
	if exists {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	s.entries[name] = &entry{id: id, job: job, status: JobStatus{Name: name, Schedule: schedule}}
	s.mu.Unlock()

	s.log.Info().Str("schedule", schedule).Str("job", name).Msg("Job registered")
	return nil
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Jobs returns the status of every registered job ordered by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.status
		ce := s.cron.Entry(e.id)
		st.NextRun = ce.Next
		if st.NextRun.IsZero() && ce.Schedule != nil {
			// Not started yet.
			st.NextRun = ce.Schedule.Next(time.Now())
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow executes a registered job immediately, outside its schedule, and
// records the outcome like a scheduled run.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(name)
}

func (s *Scheduler) execute(name string) error {
	s.mu.Lock()
	e := s.entries[name]
	s.mu.Unlock()
	if e == nil {
		return nil
	}

	s.log.Debug().Str("job", name).Msg("Running job")
	start := time.Now()
	err := e.job.Run()
	elapsed := time.Since(start)

	s.mu.Lock()
	e.status.LastRun = start
	e.status.DurationMs = elapsed.Milliseconds()
	e.status.Runs++
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("duration", elapsed).Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Dur("duration", elapsed).Msg("Job completed")
	return nil
}
