package shift

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
)

type ClockInResult struct {
	Status      attendance.ClockInStatus
	LateMinutes int
}

type ClockOutResult struct {
	Status            attendance.ClockOutStatus
	EarlyLeaveMinutes int
}

// ClassifyClockIn grades a clock-in against the occurrence of the shift that covers the event.
// The tolerance boundary is inclusive: start+tolerance is still on-time.
func ClassifyClockIn(w schedule.ShiftWindow, event time.Time) ClockInResult {
	start, _ := w.Bounds(w.WorkingDay(event))

	late := floorMinutes(event.Sub(start)) - w.ToleranceMinutes
	if late <= 0 {
		return ClockInResult{Status: attendance.ClockInOnTime}
	}
	return ClockInResult{Status: attendance.ClockInLate, LateMinutes: late}
}

// ClassifyClockOut grades a clock-out against the end of the shift that clockIn belongs to.
// Leaving exactly at the end is normal.
func ClassifyClockOut(w schedule.ShiftWindow, clockIn, event time.Time) ClockOutResult {
	_, end := w.Bounds(w.WorkingDay(clockIn.In(event.Location())))

	if event.Before(end) {
		return ClockOutResult{
			Status:            attendance.ClockOutEarly,
			EarlyLeaveMinutes: ceilMinutes(end.Sub(event)),
		}
	}
	return ClockOutResult{Status: attendance.ClockOutNormal}
}

// WorkMinutes returns whole minutes worked. A clock-out before the clock-in yields
// ErrWorkDurationUnavailable instead of a clamped value.
func WorkMinutes(clockIn, clockOut time.Time) (int, error) {
	if clockOut.Before(clockIn) {
		return 0, fmt.Errorf("%w: clock-in %s, clock-out %s", attendance.ErrWorkDurationUnavailable,
			clockIn.Format(time.RFC3339), clockOut.Format(time.RFC3339))
	}
	return floorMinutes(clockOut.Sub(clockIn)), nil
}

// Provisional is the locally computed view of today's record, used until the server answers.
type Provisional struct {
	ClockIn  *ClockInResult
	ClockOut *ClockOutResult
}

// Preview classifies an event that is about to be submitted for action.
func Preview(w schedule.ShiftWindow, action attendance.Action, event time.Time, today *attendance.TodayAttendance) Provisional {
	switch action {
	case attendance.ActionClockIn:
		in := ClassifyClockIn(w, event)
		return Provisional{ClockIn: &in}
	case attendance.ActionClockOut:
		clockIn := event
		if today.HasClockedIn() {
			clockIn = *today.ClockIn
		}
		out := ClassifyClockOut(w, clockIn, event)
		return Provisional{ClockOut: &out}
	}
	return Provisional{}
}
