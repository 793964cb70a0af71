// Package scheduler runs monthly bill generation on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dairyflow/internal/billing"
	"dairyflow/internal/core"
	"dairyflow/internal/log"
	"dairyflow/internal/settings"
)

// DefaultSchedule fires at 06:00 on the first day of every month.
const DefaultSchedule = "0 6 1 * *"

type BatchGenerator interface {
	GenerateAll(ctx context.Context, period core.Period) (billing.BatchResult, error)
}

// BillingSource reports whether auto billing is enabled. It is read on every
// run so a settings change applies without a restart.
type BillingSource interface {
	Billing() settings.Billing
}

// Loader is implemented by sources that can refresh from storage, such as
// *settings.Manager. RunOnce loads once before the batch so every customer
// in the run sees the same settings.
type Loader interface {
	Load(ctx context.Context) error
}

type Config struct {
	Schedule   string
	Location   *time.Location
	RunTimeout time.Duration
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	loc       *time.Location
	timeout   time.Duration
	generator BatchGenerator
	settings  BillingSource
	logger    *log.Logger
	now       func() time.Time
}

// New validates the schedule and builds a stopped scheduler.
func New(cfg Config, generator BatchGenerator, src BillingSource, logger *log.Logger) (*Scheduler, error) {
	if generator == nil {
		return nil, fmt.Errorf("scheduler: generator is required")
	}
	if logger == nil {
		logger = log.Discard(log.ComponentScheduler)
	}
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid billing schedule %q: %w", schedule, err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		schedule:  schedule,
		loc:       loc,
		timeout:   timeout,
		generator: generator,
		settings:  src,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start registers the billing job and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runMonthly); err != nil {
		return fmt.Errorf("schedule monthly billing: %w", err)
	}
	s.logger.Info("Starting scheduler",
		"schedule", s.schedule,
		"timezone", s.loc.String())
	s.cron.Start()
	return nil
}

// Stop stops the cron runner. The returned context is done once a running
// job has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping scheduler")
	return s.cron.Stop()
}

// Target returns the period a run at the current time bills: the month
// before the current one in the scheduler's timezone.
func (s *Scheduler) Target() core.Period {
	return core.PeriodOf(core.DateOf(s.now().In(s.loc))).Previous()
}

// RunOnce bills the previous month when auto billing is enabled. ran is false
// when the setting is off.
func (s *Scheduler) RunOnce(ctx context.Context) (res billing.BatchResult, ran bool, err error) {
	if l, ok := s.settings.(Loader); ok {
		if err := l.Load(ctx); err != nil {
			s.logger.WarnContext(ctx, "Settings reload failed, using last known values", log.FieldError, err.Error())
		}
	}
	if s.settings != nil && !s.settings.Billing().AutoBillGeneration {
		s.logger.InfoContext(ctx, "Auto bill generation disabled, skipping run")
		return billing.BatchResult{}, false, nil
	}
	period := s.Target()
	res, err = s.generator.GenerateAll(ctx, period)
	if err != nil {
		return res, true, fmt.Errorf("generate bills for %s: %w", period.Key(), err)
	}
	return res, true, nil
}

func (s *Scheduler) runMonthly() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, ran, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled bill generation failed", log.FieldError, err.Error())
		return
	}
	if ran {
		s.logger.InfoContext(ctx, "Scheduled bill generation finished",
			log.FieldPeriod, res.Period.Key(),
			"created", res.Created,
			"skipped", res.Skipped,
			"failed", res.Failed)
	}
}
