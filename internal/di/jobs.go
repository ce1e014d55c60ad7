package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/mcvqe/internal/config"
	"github.com/aristath/mcvqe/internal/reliability"
	"github.com/aristath/mcvqe/internal/scheduler"
)

const (
	dailyMaintenanceSchedule  = "0 0 2 * * *"
	weeklyMaintenanceSchedule = "0 0 4 * * SUN"
)

// RegisterJobs creates the background jobs and registers them with a new
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	retention := scheduler.RetentionJobConfig{
		Runs:          container.RunRepo,
		DB:            container.RunsDB,
		Emitter:       container.EventManager,
		RetentionDays: cfg.Retention.Days,
	}
	if container.RunArchiver != nil {
		retention.Archives = container.RunArchiver
	}

	instances := &JobInstances{
		Retention:         scheduler.NewRetentionJob(retention, log),
		DailyMaintenance:  reliability.NewDailyMaintenanceJob(container.RunsDB, cfg.DataDir, log),
		WeeklyMaintenance: reliability.NewWeeklyMaintenanceJob(container.RunsDB, log),
	}

	sched := scheduler.New(log)
	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Retention.Schedule, instances.Retention},
		{dailyMaintenanceSchedule, instances.DailyMaintenance},
		{weeklyMaintenanceSchedule, instances.WeeklyMaintenance},
	}
	for _, reg := range registrations {
		if err := sched.AddJob(reg.schedule, reg.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", reg.job.Name(), err)
		}
	}

	container.Scheduler = sched
	container.Jobs = instances
	return instances, nil
}
