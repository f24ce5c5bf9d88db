package schedule

// ScheduleForToday is derived on demand from the shift window and the wall clock; it is never persisted.
type ScheduleForToday struct {
	ScheduleName        string          `json:"schedule_name,omitempty"`
	LocationType        WorkArrangement `json:"location_type,omitempty"`
	Shift               ShiftWindow     `json:"shift"`
	ClockInWindowStart  ClockTime       `json:"clock_in_window_start"`
	CanClockInNow       bool            `json:"can_clock_in_now"`
	MinutesUntilClockIn *int            `json:"minutes_until_clock_in"`
	Locations           []Location      `json:"locations,omitempty"`
}
