package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

const attendanceDailyConstraint = "attendances_employee_id_date_key"

const attendanceColumns = `
	id, employee_id, company_id, date, work_schedule_time_id, actual_location_type,
	to_char(shift_start, 'HH24:MI'), to_char(shift_end, 'HH24:MI'), tolerance_minutes,
	clock_in, clock_in_latitude, clock_in_longitude, clock_in_address, clock_in_proof_url,
	clock_in_status, late_minutes,
	clock_out, clock_out_latitude, clock_out_longitude, clock_out_address, clock_out_proof_url,
	clock_out_status, early_leave_minutes, work_hours_in_minutes,
	created_at, updated_at`

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}

// Create implements attendance.AttendanceRepository.
func (a *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		INSERT INTO attendances (
			employee_id, company_id, date, work_schedule_time_id, actual_location_type,
			shift_start, shift_end, tolerance_minutes,
			clock_in, clock_in_latitude, clock_in_longitude, clock_in_address, clock_in_proof_url,
			clock_in_status, late_minutes
		) VALUES (
			$1, $2, $3, $4, $5, $6::time, $7::time, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		newAttendance.EmployeeID,
		newAttendance.CompanyID,
		newAttendance.Date,
		newAttendance.WorkScheduleTimeID,
		newAttendance.ActualLocationType,
		newAttendance.ShiftStart.String(),
		newAttendance.ShiftEnd.String(),
		newAttendance.ToleranceMinutes,
		newAttendance.ClockIn,
		newAttendance.ClockInLatitude,
		newAttendance.ClockInLongitude,
		newAttendance.ClockInAddress,
		newAttendance.ClockInProofURL,
		newAttendance.ClockInStatus,
		newAttendance.LateMinutes,
	).Scan(&newAttendance.ID, &newAttendance.CreatedAt, &newAttendance.UpdatedAt)

	if err != nil {
		if database.IsUniqueViolation(err, attendanceDailyConstraint) {
			return attendance.Attendance{}, attendance.ErrAlreadyCheckedIn
		}
		return attendance.Attendance{}, fmt.Errorf("failed to create attendance: %w", err)
	}

	return newAttendance, nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time, companyID string) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1
		  AND date = $2::date
		  AND company_id = $3
		LIMIT 1
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, employeeID, date.Format("2006-01-02"), companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}

	return &att, nil
}

// UpdateClockOut implements attendance.AttendanceRepository.
func (a *attendanceRepository) UpdateClockOut(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		UPDATE attendances SET
			clock_out = $1,
			clock_out_latitude = $2,
			clock_out_longitude = $3,
			clock_out_address = $4,
			clock_out_proof_url = $5,
			clock_out_status = $6,
			early_leave_minutes = $7,
			work_hours_in_minutes = $8,
			updated_at = NOW()
		WHERE id = $9
		  AND company_id = $10
		  AND clock_out IS NULL
		RETURNING ` + attendanceColumns

	updated, err := scanAttendance(q.QueryRow(ctx, query,
		att.ClockOut,
		att.ClockOutLatitude,
		att.ClockOutLongitude,
		att.ClockOutAddress,
		att.ClockOutProofURL,
		att.ClockOutStatus,
		att.EarlyLeaveMinutes,
		att.WorkMinutes,
		att.ID,
		att.CompanyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Attendance{}, attendance.ErrAlreadyCheckedOut
		}
		return attendance.Attendance{}, fmt.Errorf("failed to update clock out: %w", err)
	}

	return updated, nil
}

func scanAttendance(row pgx.Row) (attendance.Attendance, error) {
	var (
		att                  attendance.Attendance
		shiftStart, shiftEnd string
	)

	err := row.Scan(
		&att.ID, &att.EmployeeID, &att.CompanyID, &att.Date, &att.WorkScheduleTimeID, &att.ActualLocationType,
		&shiftStart, &shiftEnd, &att.ToleranceMinutes,
		&att.ClockIn, &att.ClockInLatitude, &att.ClockInLongitude, &att.ClockInAddress, &att.ClockInProofURL,
		&att.ClockInStatus, &att.LateMinutes,
		&att.ClockOut, &att.ClockOutLatitude, &att.ClockOutLongitude, &att.ClockOutAddress, &att.ClockOutProofURL,
		&att.ClockOutStatus, &att.EarlyLeaveMinutes, &att.WorkMinutes,
		&att.CreatedAt, &att.UpdatedAt,
	)
	if err != nil {
		return attendance.Attendance{}, err
	}

	if att.ShiftStart, err = schedule.ParseClockTime(shiftStart); err != nil {
		return attendance.Attendance{}, err
	}
	if att.ShiftEnd, err = schedule.ParseClockTime(shiftEnd); err != nil {
		return attendance.Attendance{}, err
	}
	return att, nil
}
