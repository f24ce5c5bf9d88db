package attendance

import (
	"context"
)

// AttendanceService defines business logic for attendance operations
type AttendanceService interface {
	// ClockIn processes employee check-in with full validation
	ClockIn(ctx context.Context, req ClockRequest) (AttendanceResponse, error)

	// ClockOut processes employee check-out
	ClockOut(ctx context.Context, req ClockRequest) (AttendanceResponse, error)

	// GetToday returns the authenticated employee's record for today, or nil.
	GetToday(ctx context.Context) (*TodayAttendance, error)
}
