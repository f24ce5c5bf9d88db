package session

import (
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/geolocation"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
)

// Snapshot is everything the presentation layer renders.
type Snapshot struct {
	State       State
	Action      attendance.Action
	AttemptID   string
	Location    geolocation.State
	Capture     capture.State
	Ready       bool
	Schedule    *schedule.ScheduleForToday
	Eligibility shift.Eligibility
	Today       *attendance.TodayAttendance

	// Provisional is the local classification of the captured event. It is
	// replaced by Today once the server confirms the submission.
	Provisional *shift.Provisional

	Err     error
	Message string
	Outcome *Outcome
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Action:    s.action,
		AttemptID: s.attemptID,
		Location:  s.locator.State(),
		Capture:   s.camera.State(),
		Ready:     s.state == StateReadyToSubmit,
		Schedule:  s.schedule,
		Today:     s.today,
		Err:       s.err,
		Message:   attendance.UserMessage(s.err),
		Outcome:   s.outcome,
	}

	now := s.now()
	if s.schedule != nil {
		snap.Eligibility = s.policy.Evaluate(&s.schedule.Shift, now, s.today)
	} else {
		snap.Eligibility = s.policy.Evaluate(nil, now, s.today)
	}

	if still := snap.Capture.Still; still != nil && s.schedule != nil && s.action.Valid() {
		p := shift.Preview(s.schedule.Shift, s.action, still.CapturedAt, s.today)
		snap.Provisional = &p
	}

	return snap
}
