package cron

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired entries from an in-process store.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SubscriberCounter reports open event streams.
type SubscriberCounter interface {
	TotalSubscribers() int
}

// RegisterLockSweep removes expired in-memory clock locks.
func RegisterLockSweep(s *Scheduler, sweeper Sweeper, interval time.Duration) {
	s.AddJob("sweep_expired_clock_locks", interval, func(ctx context.Context) error {
		removed, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		if removed > 0 {
			slog.Debug("Expired clock locks removed", "count", removed)
		}
		return nil
	})
}

// RegisterStreamReport logs the number of connected attendance event streams.
func RegisterStreamReport(s *Scheduler, counter SubscriberCounter, interval time.Duration) {
	s.AddJob("report_event_streams", interval, func(context.Context) error {
		slog.Info("Attendance event streams", "subscribers", counter.TotalSubscribers())
		return nil
	})
}
