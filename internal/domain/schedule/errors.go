package schedule

import "errors"

var (
	ErrInvalidClockTime   = errors.New("invalid clock time, use HH:mm")
	ErrInvalidShiftWindow = errors.New("invalid shift window")

	// ErrNoScheduleToday means the employee has no shift on the requested day.
	ErrNoScheduleToday  = errors.New("no schedule found for today")
	ErrTimezoneNotFound = errors.New("timezone not found for employee")
)
