package schedule

import "context"

type ScheduleService interface {
	// GetToday returns the authenticated employee's schedule for today, or nil when there is none.
	GetToday(ctx context.Context) (*ScheduleForToday, error)
}
