package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type scheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) schedule.ScheduleRepository {
	return &scheduleRepository{db: db}
}

// GetActiveSchedule implements schedule.ScheduleRepository.
func (s *scheduleRepository) GetActiveSchedule(ctx context.Context, employeeID string, date time.Time, companyID string) (*schedule.ActiveSchedule, error) {
	q := GetQuerier(ctx, s.db)

	query := `
WITH target_schedule AS (
    SELECT COALESCE(
        -- assignment override for the date
        (
            SELECT work_schedule_id
            FROM employee_schedule_assignments
            WHERE employee_id = $1
              AND $2::date BETWEEN start_date AND end_date
            ORDER BY start_date DESC
            LIMIT 1
        ),
        -- employee default
        (
            SELECT work_schedule_id
            FROM employees
            WHERE id = $1 AND company_id = $3
        )
    ) AS id
)
SELECT
    ws.id AS schedule_id,
    ws.name AS schedule_name,
    ws.grace_period_minutes,
    ws.type AS location_type,
    wst.id AS time_id,
    to_char(wst.clock_in_time, 'HH24:MI') AS clock_in_time,
    to_char(wst.clock_out_time, 'HH24:MI') AS clock_out_time,
    COALESCE(
        (
            SELECT json_agg(json_build_object(
                'name', wsl.location_name,
                'latitude', wsl.latitude,
                'longitude', wsl.longitude,
                'radius_meters', wsl.radius_meters
            ))
            FROM work_schedule_locations wsl
            WHERE wsl.work_schedule_id = ws.id
        ),
        '[]'::json
    ) AS allowed_locations
FROM target_schedule ts
JOIN work_schedules ws ON ws.id = ts.id
-- ISODOW: 1 = Monday .. 7 = Sunday
JOIN work_schedule_times wst ON wst.work_schedule_id = ws.id
    AND wst.day_of_week = EXTRACT(ISODOW FROM $2::date)::int
WHERE
    ws.company_id = $3
    AND ws.deleted_at IS NULL
	`

	var (
		active                    schedule.ActiveSchedule
		locationType              string
		clockInTime, clockOutTime string
		locationsJSON             []byte
	)

	err := q.QueryRow(ctx, query, employeeID, date.Format("2006-01-02"), companyID).Scan(
		&active.ScheduleID,
		&active.ScheduleName,
		&active.Shift.ToleranceMinutes,
		&locationType,
		&active.TimeID,
		&clockInTime,
		&clockOutTime,
		&locationsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active schedule: %w", err)
	}

	active.LocationType = schedule.WorkArrangement(locationType)
	if active.Shift.StartTime, err = schedule.ParseClockTime(clockInTime); err != nil {
		return nil, err
	}
	if active.Shift.EndTime, err = schedule.ParseClockTime(clockOutTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(locationsJSON, &active.Locations); err != nil {
		return nil, fmt.Errorf("failed to parse locations: %w", err)
	}

	return &active, nil
}

// GetTimezoneByEmployeeID implements schedule.ScheduleRepository.
func (s *scheduleRepository) GetTimezoneByEmployeeID(ctx context.Context, employeeID string, companyID string) (string, error) {
	q := GetQuerier(ctx, s.db)

	query := `
		SELECT b.timezone
		FROM employees e
		JOIN branches b ON b.id = e.branch_id
		WHERE e.id = $1
		  AND e.company_id = $2
		  AND e.deleted_at IS NULL
	`

	var timezone *string
	err := q.QueryRow(ctx, query, employeeID, companyID).Scan(&timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", schedule.ErrTimezoneNotFound
		}
		return "", fmt.Errorf("failed to get timezone: %w", err)
	}
	if timezone == nil || *timezone == "" {
		return "", schedule.ErrTimezoneNotFound
	}

	return *timezone, nil
}
