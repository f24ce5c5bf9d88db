package shift

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
)

// ScheduleFinder is the slice of schedule.ScheduleRepository needed to resolve a working day.
type ScheduleFinder interface {
	GetActiveSchedule(ctx context.Context, employeeID string, date time.Time, companyID string) (*schedule.ActiveSchedule, error)
}

// ActiveWorkingDay returns the working day now belongs to and its active schedule.
// While yesterday's overnight shift is still running, that is yesterday.
// The schedule is nil when nothing is assigned for the resolved day.
func ActiveWorkingDay(ctx context.Context, finder ScheduleFinder, employeeID, companyID string, now time.Time) (time.Time, *schedule.ActiveSchedule, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	prev, err := finder.GetActiveSchedule(ctx, employeeID, yesterday, companyID)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to get active schedule: %w", err)
	}
	if prev != nil && prev.Shift.Overnight() && prev.Shift.WorkingDay(now).Equal(yesterday) {
		return yesterday, prev, nil
	}

	active, err := finder.GetActiveSchedule(ctx, employeeID, today, companyID)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("failed to get active schedule: %w", err)
	}
	return today, active, nil
}
