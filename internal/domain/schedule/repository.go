package schedule

import (
	"context"
	"time"
)

type ScheduleRepository interface {
	// GetActiveSchedule resolves the schedule rule for the employee on date.
	// Assignment overrides win over the employee's default schedule.
	// Returns (nil, nil) when the employee has no shift that day.
	GetActiveSchedule(ctx context.Context, employeeID string, date time.Time, companyID string) (*ActiveSchedule, error)

	// GetTimezoneByEmployeeID returns the IANA zone of the employee's branch.
	GetTimezoneByEmployeeID(ctx context.Context, employeeID string, companyID string) (string, error)
}
