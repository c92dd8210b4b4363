package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
)

// sweepTimeout bounds one sweep cycle so a wedged disk cannot pile up runs.
const sweepTimeout = 5 * time.Minute

// Service runs the cache sweep on a cron schedule.
type Service struct {
	cache  interfaces.QuoteCache
	cron   *cron.Cron
	logger arbor.ILogger

	mu       sync.Mutex
	running  bool
	sweeping bool
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a new scheduler service.
func NewService(cache interfaces.QuoteCache, logger arbor.ILogger) *Service {
	return &Service{
		cache:  cache,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start begins the scheduler with the given cron expression.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if cronExpr == "" {
		cronExpr = "*/30 * * * *" // Default: every 30 minutes
	}
	if err := common.ValidateSweepSchedule(cronExpr); err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runSweep); err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", cronExpr).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// runSweep executes one cache sweep cycle. Overlapping cycles are skipped
// rather than queued.
func (s *Service) runSweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in cache sweep")
		}
	}()

	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous sweep still running, skipping this cycle")
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	removed, err := s.cache.Sweep(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Cache sweep failed")
		return
	}

	s.logger.Info().
		Int("removed", removed).
		Dur("duration", time.Since(started)).
		Msg("Cache sweep completed")
}
