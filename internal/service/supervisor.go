// Package service runs scans on behalf of the operator: once in manual
// mode, repeatedly on a cron schedule in timer mode. It also owns the
// periodic progress reporting, which reads counters only and never
// touches the engine's authoritative state.
package service

import (
	"context"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/hostprowl/prowl/internal/model"
)

// RunFunc executes one full scan run.
type RunFunc func(ctx context.Context) error

type Supervisor struct {
	mode     string
	schedule string
	run      RunFunc
}

// NewSupervisor validates the service configuration. Timer mode requires
// a parseable 5-field cron schedule.
func NewSupervisor(cfg model.Service, run RunFunc) (*Supervisor, error) {
	switch cfg.Mode {
	case model.ServiceModeManual:
	case model.ServiceModeTimer:
		if err := ParseCron(cfg.Schedule); err != nil {
			return nil, fmt.Errorf("timer mode schedule %q: %w", cfg.Schedule, err)
		}
	default:
		return nil, fmt.Errorf("unsupported service mode %q", cfg.Mode)
	}

	return &Supervisor{
		mode:     cfg.Mode,
		schedule: cfg.Schedule,
		run:      run,
	}, nil
}

// Do blocks until the work is done: in manual mode for the single run,
// in timer mode until the context is canceled.
func (s *Supervisor) Do(ctx context.Context) error {
	if s.mode == model.ServiceModeManual {
		return s.run(ctx)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(s.schedule, false),
		gocron.NewTask(func() {
			if err := s.run(ctx); err != nil {
				slog.ErrorContext(ctx, "scheduled run failed", "error", err)
			}
		}),
		// a slow scan must not pile up behind itself
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling runs: %w", err)
	}

	scheduler.Start()
	slog.InfoContext(ctx, "timer mode", "schedule", s.schedule)
	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return ctx.Err()
}
