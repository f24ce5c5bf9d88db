package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClockTime is a time of day with minute precision, counted in minutes since midnight.
type ClockTime int

const minutesPerDay = 24 * 60

// ParseClockTime accepts "HH:mm" and "HH:mm:ss" (seconds are dropped).
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
}

// MustClockTime is ParseClockTime for literals.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant this clock time falls on the calendar day of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

// Add shifts the clock time by d, wrapping around midnight.
func (c ClockTime) Add(d time.Duration) ClockTime {
	m := (int(c) + int(d/time.Minute)) % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return ClockTime(m)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ShiftWindow is one shift's nominal boundaries and its clock-in grace period.
// A window whose end is not after its start ends on the next calendar day.
type ShiftWindow struct {
	StartTime        ClockTime `json:"start_time"`
	EndTime          ClockTime `json:"end_time"`
	ToleranceMinutes int       `json:"tolerance_minutes"`
}

func (w ShiftWindow) Validate() error {
	if w.ToleranceMinutes < 0 {
		return fmt.Errorf("%w: tolerance_minutes must not be negative", ErrInvalidShiftWindow)
	}
	if w.StartTime < 0 || w.StartTime >= minutesPerDay || w.EndTime < 0 || w.EndTime >= minutesPerDay {
		return fmt.Errorf("%w: times must be within a day", ErrInvalidShiftWindow)
	}
	return nil
}

// Overnight reports whether the shift ends on the day after it starts.
func (w ShiftWindow) Overnight() bool {
	return w.EndTime <= w.StartTime
}

// Bounds resolves the window against the working day that contains day.
func (w ShiftWindow) Bounds(day time.Time) (start, end time.Time) {
	start = w.StartTime.On(day)
	end = w.EndTime.On(day)
	if w.Overnight() {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

// WorkingDay returns the local midnight of the day whose occurrence of the
// window covers t. Before an overnight shift ends, that is the previous day.
func (w ShiftWindow) WorkingDay(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if !w.Overnight() {
		return day
	}
	prev := day.AddDate(0, 0, -1)
	if _, end := w.Bounds(prev); t.Before(end) {
		return prev
	}
	return day
}

type WorkArrangement string

const (
	WorkArrangementWFO    WorkArrangement = "WFO"    // Work From Office
	WorkArrangementWFA    WorkArrangement = "WFA"    // Work From Anywhere
	WorkArrangementHybrid WorkArrangement = "Hybrid" // Hybrid Work Arrangement
)

// Location is a geofence centre with its accepted radius.
type Location struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters int     `json:"radius_meters"`
}

// ActiveSchedule is the schedule rule that applies to one employee on one day.
type ActiveSchedule struct {
	ScheduleID   string
	ScheduleName string
	LocationType WorkArrangement
	TimeID       string
	Shift        ShiftWindow
	Locations    []Location
}

// RequiresGeofence reports whether clock events must fall inside one of the locations.
func (a ActiveSchedule) RequiresGeofence() bool {
	return a.LocationType != WorkArrangementWFA
}
