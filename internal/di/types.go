// Package di wires the service's collaborators together.
//
// The Container is the single owner of every long-lived instance: the run
// store, the event bus, the run service and its HTTP handler, the optional
// archiver and the scheduler with its jobs.
package di

import (
	"github.com/aristath/mcvqe/internal/database"
	"github.com/aristath/mcvqe/internal/events"
	mcvqehandlers "github.com/aristath/mcvqe/internal/modules/mcvqe/handlers"
	"github.com/aristath/mcvqe/internal/modules/runs"
	"github.com/aristath/mcvqe/internal/reliability"
	"github.com/aristath/mcvqe/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	RunsDB *database.DB

	EventBus     *events.Bus
	EventManager *events.Manager

	RunRepo      *runs.Repository
	RunService   *runs.Service
	RunArchiver  *reliability.RunArchiver // nil when archival is disabled
	MCVQEHandler *mcvqehandlers.Handler

	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	Retention         *scheduler.RetentionJob
	DailyMaintenance  *reliability.DailyMaintenanceJob
	WeeklyMaintenance *reliability.WeeklyMaintenanceJob
}

// Close releases the run store
func (c *Container) Close() error {
	if c.RunsDB == nil {
		return nil
	}
	return c.RunsDB.Close()
}
