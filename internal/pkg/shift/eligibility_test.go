package shift

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

func at(hhmm string) time.Time {
	c := schedule.MustClockTime(hhmm)
	return c.On(time.Date(2025, 3, 10, 0, 0, 0, 0, jakarta))
}

func window(start, end string, tolerance int) schedule.ShiftWindow {
	return schedule.ShiftWindow{
		StartTime:        schedule.MustClockTime(start),
		EndTime:          schedule.MustClockTime(end),
		ToleranceMinutes: tolerance,
	}
}

func TestEvaluate_NoSchedule(t *testing.T) {
	e := Policy{PreWindow: 15 * time.Minute}.Evaluate(nil, at("10:00"), nil)

	assert.False(t, e.HasSchedule)
	assert.False(t, e.CanClockInNow)
	assert.False(t, e.CanClockOutNow)
	assert.Nil(t, e.MinutesUntilClockIn)
}

func TestEvaluate_ClockInWindow(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	w := window("09:00", "17:00", 10)

	tests := []struct {
		name      string
		now       time.Time
		canClock  bool
		untilOpen *int
	}{
		{"one minute before open", at("08:44"), false, intPtr(1)},
		{"at open", at("08:45"), true, nil},
		{"at shift start", at("09:00"), true, nil},
		{"well before", at("08:00"), false, intPtr(45)},
		{"partial minute rounds up", at("08:44").Add(30 * time.Second), false, intPtr(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := p.Evaluate(&w, tt.now, nil)
			assert.True(t, e.HasSchedule)
			assert.Equal(t, tt.canClock, e.CanClockInNow)
			assert.Equal(t, tt.untilOpen, e.MinutesUntilClockIn)
			assert.Equal(t, at("08:45"), e.ClockInWindowStart)
		})
	}
}

func TestEvaluate_MinutesUntilClockInDecreases(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	w := window("09:00", "17:00", 0)

	prev := -1
	for now := at("08:00"); now.Before(at("08:45")); now = now.Add(time.Minute) {
		e := p.Evaluate(&w, now, nil)
		require.NotNil(t, e.MinutesUntilClockIn)
		if prev >= 0 {
			assert.Less(t, *e.MinutesUntilClockIn, prev)
		}
		prev = *e.MinutesUntilClockIn
	}
	assert.Equal(t, 1, prev)
	assert.Nil(t, p.Evaluate(&w, at("08:45"), nil).MinutesUntilClockIn)
}

func TestEvaluate_AlreadyClockedIn(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	w := window("09:00", "17:00", 10)
	clockIn := at("09:02")
	today := &attendance.TodayAttendance{ClockIn: &clockIn}

	e := p.Evaluate(&w, at("09:30"), today)
	assert.False(t, e.CanClockInNow)
	assert.False(t, e.CanClockOutNow, "clock-out opens at shift end")

	e = p.Evaluate(&w, at("17:00"), today)
	assert.True(t, e.CanClockOutNow)

	clockOut := at("17:05")
	today.ClockOut = &clockOut
	e = p.Evaluate(&w, at("17:10"), today)
	assert.False(t, e.CanClockOutNow)
}

func TestEvaluate_ClockOutRequiresClockIn(t *testing.T) {
	w := window("09:00", "17:00", 10)
	e := DefaultPolicy().Evaluate(&w, at("18:00"), nil)
	assert.False(t, e.CanClockOutNow)
}

func TestEvaluate_OvernightClockOut(t *testing.T) {
	w := window("22:00", "06:00", 0)
	clockIn := at("21:55")
	today := &attendance.TodayAttendance{ClockIn: &clockIn}

	e := DefaultPolicy().Evaluate(&w, at("23:00"), today)
	assert.False(t, e.CanClockOutNow)

	e = DefaultPolicy().Evaluate(&w, at("06:00").AddDate(0, 0, 1), today)
	assert.True(t, e.CanClockOutNow)
}

func TestScheduleForToday(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	active := &schedule.ActiveSchedule{
		ScheduleName: "Office",
		LocationType: schedule.WorkArrangementWFO,
		Shift:        window("09:00", "17:00", 10),
	}

	got := p.ScheduleForToday(active, at("08:30"), nil)
	require.NotNil(t, got)
	assert.Equal(t, "08:45", got.ClockInWindowStart.String())
	assert.False(t, got.CanClockInNow)
	require.NotNil(t, got.MinutesUntilClockIn)
	assert.Equal(t, 15, *got.MinutesUntilClockIn)

	assert.Nil(t, p.ScheduleForToday(nil, at("08:30"), nil))
}

func intPtr(v int) *int { return &v }

func TestEvaluate_OvernightArrivalAfterMidnight(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	w := window("22:00", "06:00", 0)

	e := p.Evaluate(&w, at("02:00").AddDate(0, 0, 1), nil)
	assert.True(t, e.CanClockInNow)
	assert.Equal(t, at("21:45"), e.ClockInWindowStart)

	e = p.Evaluate(&w, at("07:00").AddDate(0, 0, 1), nil)
	assert.False(t, e.CanClockInNow)
	require.NotNil(t, e.MinutesUntilClockIn)
	assert.Equal(t, 14*60+45, *e.MinutesUntilClockIn)
}

func TestEvaluate_OvernightClockOutAfterMidnightArrival(t *testing.T) {
	p := Policy{PreWindow: 15 * time.Minute}
	w := window("22:00", "06:00", 0)
	clockIn := at("02:00").AddDate(0, 0, 1)
	today := &attendance.TodayAttendance{ClockIn: &clockIn}

	assert.False(t, p.Evaluate(&w, at("05:59").AddDate(0, 0, 1), today).CanClockOutNow)
	assert.True(t, p.Evaluate(&w, at("06:00").AddDate(0, 0, 1), today).CanClockOutNow)
}
