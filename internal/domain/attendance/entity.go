package attendance

import (
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
)

// Action identifies which half of the day's record an attempt writes.
type Action string

const (
	ActionNone     Action = ""
	ActionClockIn  Action = "clock-in"
	ActionClockOut Action = "clock-out"
)

func (a Action) Valid() bool {
	return a == ActionClockIn || a == ActionClockOut
}

type ClockInStatus string

const (
	ClockInOnTime ClockInStatus = "on-time"
	ClockInLate   ClockInStatus = "late"
)

type ClockOutStatus string

const (
	ClockOutNormal ClockOutStatus = "normal"
	ClockOutEarly  ClockOutStatus = "early"
	// ClockOutOnTime is accepted from older servers and means the same as ClockOutNormal.
	ClockOutOnTime ClockOutStatus = "on-time"
)

// GeoCoordinate is produced once per attempt and discarded when the attempt ends.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Address   *string `json:"address,omitempty"`
}

func (c GeoCoordinate) Validate() error {
	return validator.Struct(c)
}

// WithAddress returns a copy of c carrying address.
func (c GeoCoordinate) WithAddress(address string) GeoCoordinate {
	c.Address = &address
	return c
}

// Attendance is the persisted daily record. There is at most one per employee per date.
type Attendance struct {
	ID                 string
	EmployeeID         string
	CompanyID          string
	Date               time.Time
	WorkScheduleTimeID *string
	ActualLocationType *string

	ShiftStart       schedule.ClockTime
	ShiftEnd         schedule.ClockTime
	ToleranceMinutes int

	ClockIn           *time.Time
	ClockInLatitude   *float64
	ClockInLongitude  *float64
	ClockInAddress    *string
	ClockInProofURL   *string
	ClockInStatus     ClockInStatus
	LateMinutes       int
	ClockOut          *time.Time
	ClockOutLatitude  *float64
	ClockOutLongitude *float64
	ClockOutAddress   *string
	ClockOutProofURL  *string
	ClockOutStatus    *ClockOutStatus
	EarlyLeaveMinutes *int
	WorkMinutes       *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Attendance) Shift() schedule.ShiftWindow {
	return schedule.ShiftWindow{
		StartTime:        a.ShiftStart,
		EndTime:          a.ShiftEnd,
		ToleranceMinutes: a.ToleranceMinutes,
	}
}

// Today projects the stored record onto the client-facing TodayAttendance.
func (a Attendance) Today() TodayAttendance {
	today := TodayAttendance{
		ClockIn:        a.ClockIn,
		ClockOut:       a.ClockOut,
		ClockInStatus:  a.ClockInStatus,
		ClockOutStatus: a.ClockOutStatus,
		LateMinutes:    a.LateMinutes,
		WorkMinutes:    a.WorkMinutes,
		Shift:          a.Shift(),
	}
	if a.EarlyLeaveMinutes != nil {
		today.EarlyLeaveMinutes = *a.EarlyLeaveMinutes
	}
	return today
}

// TodayAttendance is the authoritative view of the current day's record.
// WorkMinutes is nil until both halves exist, and stays nil when the pair is inconsistent.
type TodayAttendance struct {
	ClockIn           *time.Time           `json:"clock_in"`
	ClockOut          *time.Time           `json:"clock_out"`
	ClockInStatus     ClockInStatus        `json:"clock_in_status"`
	ClockOutStatus    *ClockOutStatus      `json:"clock_out_status"`
	LateMinutes       int                  `json:"late_minutes"`
	EarlyLeaveMinutes int                  `json:"early_leave_minutes"`
	WorkMinutes       *int                 `json:"work_minutes"`
	Shift             schedule.ShiftWindow `json:"shift"`
}

func (t *TodayAttendance) HasClockedIn() bool {
	return t != nil && t.ClockIn != nil
}

func (t *TodayAttendance) HasClockedOut() bool {
	return t != nil && t.ClockOut != nil
}
