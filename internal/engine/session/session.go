// Package session sequences one attendance attempt: location and camera,
// capture, submission, and the reset that always follows.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/geolocation"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/submission"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StateIdle          State = "idle"
	StateStarting      State = "starting"
	StateAcquiring     State = "acquiring"
	StateReadyToSubmit State = "ready-to-submit"
	StateSubmitting    State = "submitting"
	StateSettled       State = "settled"
)

var ErrInvalidTransition = errors.New("action not allowed in the current session state")

type Locator interface {
	Acquire(ctx context.Context) (attendance.GeoCoordinate, error)
	Coordinate() *attendance.GeoCoordinate
	State() geolocation.State
	Reset()
}

type Camera interface {
	Open(ctx context.Context) error
	Capture() (*capture.Still, error)
	Retake(ctx context.Context) error
	Close()
	State() capture.State
	Still() *capture.Still
}

type Submitter interface {
	Submit(ctx context.Context, attempt submission.Attempt) (*submission.Result, error)
}

// Loader fetches the day's inputs from the server. Both calls return nil without error when there is nothing for today.
type Loader interface {
	GetScheduleToday(ctx context.Context) (*schedule.ScheduleForToday, error)
	GetTodayAttendance(ctx context.Context) (*attendance.TodayAttendance, error)
}

// Outcome is how the last attempt settled.
type Outcome struct {
	Action  attendance.Action
	Success bool
	Message string
	At      time.Time
}

// Session is the attendance state machine. The zero value is not usable; call New.
type Session struct {
	locator   Locator
	camera    Camera
	submitter Submitter
	loader    Loader
	policy    shift.Policy
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	state      State
	action     attendance.Action
	attemptID  string
	schedule   *schedule.ScheduleForToday
	today      *attendance.TodayAttendance
	err        error
	outcome    *Outcome
}

type Option func(*Session)

func WithPolicy(p shift.Policy) Option {
	return func(s *Session) { s.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(locator Locator, camera Camera, submitter Submitter, loader Loader, opts ...Option) *Session {
	s := &Session{
		locator:   locator,
		camera:    camera,
		submitter: submitter,
		loader:    loader,
		policy:    shift.DefaultPolicy(),
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches today's schedule and attendance record. Nothing is cached across calls.
func (s *Session) Load(ctx context.Context) error {
	var (
		sched *schedule.ScheduleForToday
		today *attendance.TodayAttendance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sched, err = s.loader.GetScheduleToday(gctx)
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		today, err = s.loader.GetTodayAttendance(gctx)
		if err != nil {
			return fmt.Errorf("failed to load today's attendance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.schedule = sched
	s.today = today
	s.mu.Unlock()

	return nil
}

// Start begins an attempt for action. It refreshes the day's inputs, checks
// eligibility, then acquires the location and opens the camera concurrently.
// Device failures do not abort the attempt; they are reported in the snapshot
// and can be retried with RefreshLocation or Retake.
func (s *Session) Start(ctx context.Context, action attendance.Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", attendance.ErrValidation, action)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.generation++
	gen := s.generation
	s.action = action
	s.attemptID = uuid.NewString()
	s.err = nil
	s.transitionLocked(StateStarting)
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		return s.abortStart(gen, err)
	}
	if err := s.checkEligibility(action); err != nil {
		return s.abortStart(gen, err)
	}

	// Capture and location are independent from here on; either may finish first.
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return attendance.ErrSuperseded
	}
	s.transitionLocked(StateAcquiring)
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		_, err := s.locator.Acquire(ctx)
		return s.deviceSettled(gen, err)
	})
	g.Go(func() error {
		return s.deviceSettled(gen, s.camera.Open(ctx))
	})
	devErr := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// Reset ran while the devices were opening. Release whatever came up
		// afterwards unless a newer attempt already owns the devices.
		if s.state == StateIdle {
			s.camera.Close()
			s.locator.Reset()
		}
		return attendance.ErrSuperseded
	}

	if devErr != nil {
		slog.Warn("session: device acquisition incomplete", "attempt", s.attemptID, "error", devErr)
	}
	return devErr
}

// deviceSettled folds one device result from Start into the session.
// A request replaced by Retake or RefreshLocation is not a failure.
func (s *Session) deviceSettled(gen uint64, err error) error {
	if errors.Is(err, attendance.ErrSuperseded) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return nil
	}
	if err != nil {
		s.err = err
	}
	s.advanceLocked()
	return err
}

func (s *Session) abortStart(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == s.generation {
		s.err = err
		s.action = attendance.ActionNone
		s.transitionLocked(StateIdle)
	}
	return err
}

func (s *Session) checkEligibility(action attendance.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return attendance.ErrNoScheduleFound
	}

	e := s.policy.Evaluate(&s.schedule.Shift, s.now(), s.today)
	switch {
	case action == attendance.ActionClockIn && s.today.HasClockedIn():
		return attendance.ErrAlreadyCheckedIn
	case action == attendance.ActionClockIn && !e.CanClockInNow:
		return attendance.ErrClockInNotOpen
	case action == attendance.ActionClockOut && !s.today.HasClockedIn():
		return attendance.ErrNotCheckedIn
	case action == attendance.ActionClockOut && s.today.HasClockedOut():
		return attendance.ErrAlreadyCheckedOut
	case action == attendance.ActionClockOut && !e.CanClockOutNow:
		return attendance.ErrClockOutNotAllowed
	}
	return nil
}

// Capture freezes the photo once the face gate allows it.
func (s *Session) Capture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAcquiring {
		return ErrInvalidTransition
	}

	if _, err := s.camera.Capture(); err != nil {
		return err
	}
	s.err = nil
	s.advanceLocked()
	return nil
}

// Retake drops the photo and reopens the camera.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAcquiring && s.state != StateReadyToSubmit {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	gen := s.generation
	s.transitionLocked(StateAcquiring)
	s.mu.Unlock()

	err := s.camera.Retake(ctx)
	return s.afterDevice(gen, err)
}

// RefreshLocation requests a new coordinate, superseding any pending request.
func (s *Session) RefreshLocation(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAcquiring && s.state != StateReadyToSubmit {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	gen := s.generation
	s.mu.Unlock()

	_, err := s.locator.Acquire(ctx)
	return s.afterDevice(gen, err)
}

func (s *Session) afterDevice(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return attendance.ErrSuperseded
	}
	if errors.Is(err, attendance.ErrSuperseded) {
		return err
	}
	s.err = err
	s.advanceLocked()
	return err
}

// Submit sends the attempt. It is a separate step from reaching ready-to-submit.
// On success the session settles and resets. A rejection or transport failure
// keeps the photo and location for another try; an auth or device failure resets.
func (s *Session) Submit(ctx context.Context) (*submission.Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateReadyToSubmit:
	case StateSubmitting:
		s.mu.Unlock()
		return nil, attendance.ErrSubmissionInFlight
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", attendance.ErrValidation, ErrInvalidTransition)
	}

	gen := s.generation
	action := s.action
	attemptID := s.attemptID
	still := s.camera.Still()
	attempt := submission.Attempt{
		Action:     action,
		Coordinate: s.locator.Coordinate(),
	}
	if still != nil {
		attempt.Image = still.Data
		attempt.ContentType = still.ContentType
	}
	s.transitionLocked(StateSubmitting)
	s.mu.Unlock()

	res, err := s.submitter.Submit(ctx, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// Reset ran while the request was in flight; the server's answer still stands.
		if err == nil {
			s.today = res.Today
		}
		return res, err
	}

	if err != nil {
		s.err = err
		if submission.ResetsSession(err) {
			s.settleLocked(Outcome{Action: action, Message: attendance.UserMessage(err), At: s.now()})
			return nil, err
		}
		s.transitionLocked(StateReadyToSubmit)
		return nil, err
	}

	s.today = res.Today
	slog.Info("session: attendance recorded", "attempt", attemptID, "action", action)
	s.settleLocked(Outcome{Action: action, Success: true, Message: res.Message, At: s.now()})
	return res, nil
}

// settleLocked records the outcome and releases everything.
func (s *Session) settleLocked(o Outcome) {
	s.outcome = &o
	s.transitionLocked(StateSettled)
	s.resetLocked()
}

// Cancel abandons the attempt.
func (s *Session) Cancel() {
	s.Reset()
}

// Reset is the single exit path: it closes the camera, clears the location and
// action, and returns to idle. It must run on teardown.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = nil
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.generation++
	s.camera.Close()
	s.locator.Reset()
	s.action = attendance.ActionNone
	s.attemptID = ""
	s.transitionLocked(StateIdle)
}

// advanceLocked moves between acquiring and ready-to-submit as the artifacts come and go.
func (s *Session) advanceLocked() {
	if s.state != StateAcquiring && s.state != StateReadyToSubmit {
		return
	}
	if s.locator.Coordinate() != nil && s.camera.Still() != nil {
		s.transitionLocked(StateReadyToSubmit)
		return
	}
	s.transitionLocked(StateAcquiring)
}

func (s *Session) transitionLocked(to State) {
	if s.state == to {
		return
	}
	slog.Debug("session: transition", "attempt", s.attemptID, "from", s.state, "to", to)
	s.state = to
}
