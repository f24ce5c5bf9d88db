// Package shift decides when clock events are allowed and how they are classified.
// The server uses it as the authority; the client engine uses it for provisional feedback.
package shift

import (
	"math"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
)

// DefaultPreWindow is how long before shift start clock-in opens.
const DefaultPreWindow = 60 * time.Minute

type Policy struct {
	PreWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{PreWindow: DefaultPreWindow}
}

// Eligibility is the outcome of evaluating a shift against the clock.
type Eligibility struct {
	HasSchedule         bool
	ClockInWindowStart  time.Time
	CanClockInNow       bool
	MinutesUntilClockIn *int
	CanClockOutNow      bool
}

// WindowOpensAt returns the instant clock-in becomes allowed on day.
func (p Policy) WindowOpensAt(w schedule.ShiftWindow, day time.Time) time.Time {
	start, _ := w.Bounds(day)
	return start.Add(-p.PreWindow)
}

// Evaluate computes eligibility for now. A nil window means no schedule today,
// in which case neither action is allowed.
func (p Policy) Evaluate(w *schedule.ShiftWindow, now time.Time, today *attendance.TodayAttendance) Eligibility {
	if w == nil {
		return Eligibility{}
	}

	e := Eligibility{HasSchedule: true}

	opensAt := p.WindowOpensAt(*w, w.WorkingDay(now))
	e.ClockInWindowStart = opensAt

	if !now.Before(opensAt) {
		e.CanClockInNow = !today.HasClockedIn()
	} else {
		minutes := ceilMinutes(opensAt.Sub(now))
		e.MinutesUntilClockIn = &minutes
	}

	if today.HasClockedIn() && !today.HasClockedOut() {
		// Overnight shifts end relative to the day the employee clocked in.
		_, end := w.Bounds(w.WorkingDay(today.ClockIn.In(now.Location())))
		e.CanClockOutNow = !now.Before(end)
	}

	return e
}

// ScheduleForToday renders the eligibility of a schedule as the client-facing DTO.
func (p Policy) ScheduleForToday(active *schedule.ActiveSchedule, now time.Time, today *attendance.TodayAttendance) *schedule.ScheduleForToday {
	if active == nil {
		return nil
	}

	e := p.Evaluate(&active.Shift, now, today)

	return &schedule.ScheduleForToday{
		ScheduleName:        active.ScheduleName,
		LocationType:        active.LocationType,
		Shift:               active.Shift,
		ClockInWindowStart:  active.Shift.StartTime.Add(-p.PreWindow),
		CanClockInNow:       e.CanClockInNow,
		MinutesUntilClockIn: e.MinutesUntilClockIn,
		Locations:           active.Locations,
	}
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

func floorMinutes(d time.Duration) int {
	return int(math.Floor(d.Minutes()))
}
