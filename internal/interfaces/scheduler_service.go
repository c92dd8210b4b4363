package interfaces

// SchedulerService runs background maintenance jobs on a cron schedule.
type SchedulerService interface {
	// Start begins the scheduler with the given cron expression.
	Start(cronExpr string) error

	// Stop halts the scheduler and waits for running jobs to finish.
	Stop()
}
