package attendance

import (
	"context"
	"time"
)

// AttendanceRepository defines data access methods for attendance records.
// All methods include companyID parameter to prevent cross-company data access attacks.
type AttendanceRepository interface {
	// Create inserts the clock-in half of the day's record.
	// Returns ErrAlreadyCheckedIn when a record for (employee, date) exists.
	Create(ctx context.Context, attendance Attendance) (Attendance, error)

	// GetByEmployeeAndDate returns (nil, nil) when there is no record.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time, companyID string) (*Attendance, error)

	// UpdateClockOut writes the clock-out half. It only succeeds while clock_out is still empty;
	// otherwise it returns ErrAlreadyCheckedOut.
	UpdateClockOut(ctx context.Context, attendance Attendance) (Attendance, error)
}
