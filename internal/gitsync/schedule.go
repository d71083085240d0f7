package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// RunEvery runs job immediately and then every interval until ctx is done
// or job fails. Runs never overlap: a tick that arrives while a run is in
// progress is rescheduled. The first job error stops the schedule and is
// returned.
func RunEvery(ctx context.Context, interval time.Duration, job func(context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	failed := make(chan error, 1)
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			if err := job(ctx); err != nil {
				select {
				case failed <- err:
				default:
				}
			}
		}),
		gocron.WithName("sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	slog.Info("Starting scheduled sync", slog.Duration("interval", interval))
	s.Start()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-failed:
	}
	if serr := s.Shutdown(); serr != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(serr))
	}
	return err
}
