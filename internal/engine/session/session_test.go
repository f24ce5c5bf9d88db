package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/geolocation"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/submission"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*60*60)

func clockAt(hhmm string) func() time.Time {
	return func() time.Time {
		return schedule.MustClockTime(hhmm).On(time.Date(2025, 3, 10, 0, 0, 0, 0, wib))
	}
}

// --- devices ---

type stream struct {
	mu      sync.Mutex
	stopped bool
	img     image.Image
}

func (s *stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("stopped")
	}
	return s.img, nil
}

func (s *stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

type camera struct {
	mu      sync.Mutex
	streams []*stream
}

func (c *camera) OpenVideo(ctx context.Context, _ capture.Constraints) (capture.VideoStream, error) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.White)

	s := &stream{img: img}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *camera) allStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.streams {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			return false
		}
	}
	return true
}

type positioner struct {
	denied atomic.Bool
}

func (p *positioner) CurrentPosition(ctx context.Context) (attendance.GeoCoordinate, error) {
	if p.denied.Load() {
		return attendance.GeoCoordinate{}, attendance.ErrPermissionDenied
	}
	return attendance.GeoCoordinate{Latitude: -6.2, Longitude: 106.8}, nil
}

// --- server ---

type server struct {
	mu        sync.Mutex
	shift     schedule.ShiftWindow
	now       func() time.Time
	today     *attendance.TodayAttendance
	reject    error
	submitted int
}

func (s *server) GetScheduleToday(ctx context.Context) (*schedule.ScheduleForToday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &schedule.ScheduleForToday{Shift: s.shift}, nil
}

func (s *server) GetTodayAttendance(ctx context.Context) (*attendance.TodayAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.today == nil {
		return nil, nil
	}
	t := *s.today
	return &t, nil
}

func (s *server) ClockIn(ctx context.Context, p attendance.ClockPayload) (*attendance.SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted++
	if s.reject != nil {
		return nil, s.reject
	}
	if s.today != nil {
		return nil, &attendance.RejectionError{StatusCode: http.StatusConflict, Message: attendance.ErrAlreadyCheckedIn.Error()}
	}

	now := s.now()
	c := shift.ClassifyClockIn(s.shift, now)
	s.today = &attendance.TodayAttendance{
		ClockIn:       &now,
		ClockInStatus: c.Status,
		LateMinutes:   c.LateMinutes,
		Shift:         s.shift,
	}
	return &attendance.SubmissionResult{Message: "Clock in successful"}, nil
}

func (s *server) ClockOut(ctx context.Context, p attendance.ClockPayload) (*attendance.SubmissionResult, error) {
	return nil, errors.New("not used")
}

type fixture struct {
	session    *Session
	camera     *camera
	positioner *positioner
	server     *server
}

func newFixture(t *testing.T, now string) *fixture {
	t.Helper()

	srv := &server{
		shift: schedule.ShiftWindow{
			StartTime:        schedule.MustClockTime("08:00"),
			EndTime:          schedule.MustClockTime("16:00"),
			ToleranceMinutes: 15,
		},
		now: clockAt(now),
	}
	cam := &camera{}
	pos := &positioner{}

	controller := capture.NewController(cam,
		capture.WithFrameClock(capture.IntervalClock(time.Millisecond)),
		capture.WithClock(clockAt(now)),
	)
	locator := geolocation.New(pos)

	s := New(locator, controller, submission.NewCoordinator(srv), srv,
		WithPolicy(shift.Policy{PreWindow: 15 * time.Minute}),
		WithClock(clockAt(now)),
	)
	t.Cleanup(s.Reset)

	return &fixture{session: s, camera: cam, positioner: pos, server: srv}
}

func (f *fixture) captureWhenDetected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		g := f.session.Snapshot().Capture.Gate
		return g.Ready && g.Detected
	}, time.Second, time.Millisecond)
	require.NoError(t, f.session.Capture())
}

func TestSession_ClockInEndToEnd(t *testing.T) {
	f := newFixture(t, "08:12")
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	snap := f.session.Snapshot()
	assert.Equal(t, StateAcquiring, snap.State)
	assert.Equal(t, attendance.ActionClockIn, snap.Action)
	assert.NotEmpty(t, snap.AttemptID)
	require.NotNil(t, snap.Location.Coordinate)
	assert.False(t, snap.Ready)

	f.captureWhenDetected(t)

	snap = f.session.Snapshot()
	assert.Equal(t, StateReadyToSubmit, snap.State)
	assert.True(t, snap.Ready)
	assert.True(t, f.camera.allStopped(), "stream released once the still exists")
	require.NotNil(t, snap.Provisional)
	require.NotNil(t, snap.Provisional.ClockIn)
	assert.Equal(t, attendance.ClockInOnTime, snap.Provisional.ClockIn.Status)
	assert.Equal(t, 0, f.server.submitted, "reaching ready does not submit")

	res, err := f.session.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Clock in successful", res.Message)

	snap = f.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, attendance.ActionNone, snap.Action)
	assert.Nil(t, snap.Location.Coordinate)
	assert.Equal(t, capture.StatusClosed, snap.Capture.Status)
	require.NotNil(t, snap.Today)
	assert.Equal(t, attendance.ClockInOnTime, snap.Today.ClockInStatus)
	assert.Equal(t, 0, snap.Today.LateMinutes)
	require.NotNil(t, snap.Outcome)
	assert.True(t, snap.Outcome.Success)
	assert.False(t, snap.Eligibility.CanClockInNow)
}

func TestSession_StartChecksEligibility(t *testing.T) {
	t.Run("window closed", func(t *testing.T) {
		f := newFixture(t, "07:44")
		err := f.session.Start(context.Background(), attendance.ActionClockIn)
		assert.ErrorIs(t, err, attendance.ErrClockInNotOpen)

		snap := f.session.Snapshot()
		assert.Equal(t, StateIdle, snap.State)
		require.NotNil(t, snap.Eligibility.MinutesUntilClockIn)
		assert.Equal(t, 1, *snap.Eligibility.MinutesUntilClockIn)
		assert.Empty(t, f.camera.streams, "camera never opened")
	})

	t.Run("clock-out before clock-in", func(t *testing.T) {
		f := newFixture(t, "16:30")
		err := f.session.Start(context.Background(), attendance.ActionClockOut)
		assert.ErrorIs(t, err, attendance.ErrNotCheckedIn)
	})

	t.Run("clock-out before shift end", func(t *testing.T) {
		f := newFixture(t, "15:00")
		in := clockAt("08:05")()
		f.server.today = &attendance.TodayAttendance{ClockIn: &in}

		err := f.session.Start(context.Background(), attendance.ActionClockOut)
		assert.ErrorIs(t, err, attendance.ErrClockOutNotAllowed)
	})

	t.Run("already clocked in", func(t *testing.T) {
		f := newFixture(t, "09:00")
		in := clockAt("08:05")()
		f.server.today = &attendance.TodayAttendance{ClockIn: &in}

		err := f.session.Start(context.Background(), attendance.ActionClockIn)
		assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)
	})
}

func TestSession_RejectionKeepsCapture(t *testing.T) {
	f := newFixture(t, "08:12")
	f.server.reject = &attendance.RejectionError{
		StatusCode: http.StatusForbidden,
		Code:       "FORBIDDEN",
		Message:    "you are outside the allowed radius",
	}
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	f.captureWhenDetected(t)

	_, err := f.session.Submit(ctx)
	require.Error(t, err)

	snap := f.session.Snapshot()
	assert.Equal(t, StateReadyToSubmit, snap.State)
	assert.NotNil(t, snap.Capture.Still, "photo kept for retry")
	assert.NotNil(t, snap.Location.Coordinate)
	assert.Equal(t, "you are outside the allowed radius", snap.Message)

	f.server.mu.Lock()
	f.server.reject = nil
	f.server.mu.Unlock()

	_, err = f.session.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.submitted)
	assert.Equal(t, StateIdle, f.session.Snapshot().State)
}

func TestSession_UnauthorizedResets(t *testing.T) {
	f := newFixture(t, "08:12")
	f.server.reject = &attendance.RejectionError{StatusCode: http.StatusUnauthorized, Message: "Token expired"}
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	f.captureWhenDetected(t)

	_, err := f.session.Submit(ctx)
	assert.ErrorIs(t, err, attendance.ErrPermissionDenied)

	snap := f.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Capture.Still)
	require.NotNil(t, snap.Outcome)
	assert.False(t, snap.Outcome.Success)
	assert.Equal(t, "Token expired", snap.Message)
}

func TestSession_LocationFailureKeepsPhoto(t *testing.T) {
	f := newFixture(t, "08:12")
	f.positioner.denied.Store(true)
	ctx := context.Background()

	err := f.session.Start(ctx, attendance.ActionClockIn)
	assert.ErrorIs(t, err, attendance.ErrPermissionDenied)
	assert.Equal(t, StateAcquiring, f.session.Snapshot().State)

	f.captureWhenDetected(t)
	snap := f.session.Snapshot()
	assert.Equal(t, StateAcquiring, snap.State, "no coordinate yet")
	assert.NotNil(t, snap.Capture.Still)

	_, err = f.session.Submit(ctx)
	assert.ErrorIs(t, err, attendance.ErrValidation)
	assert.Equal(t, 0, f.server.submitted)

	f.positioner.denied.Store(false)
	require.NoError(t, f.session.RefreshLocation(ctx))
	snap = f.session.Snapshot()
	assert.Equal(t, StateReadyToSubmit, snap.State)
	assert.NotNil(t, snap.Capture.Still)
}

func TestSession_RetakeReturnsToAcquiring(t *testing.T) {
	f := newFixture(t, "08:12")
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	f.captureWhenDetected(t)
	require.Equal(t, StateReadyToSubmit, f.session.Snapshot().State)

	require.NoError(t, f.session.Retake(ctx))
	snap := f.session.Snapshot()
	assert.Equal(t, StateAcquiring, snap.State)
	assert.Nil(t, snap.Capture.Still)
	assert.Equal(t, capture.StatusPreviewing, snap.Capture.Status)
}

func TestSession_CancelReleasesDevices(t *testing.T) {
	f := newFixture(t, "08:12")
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	assert.False(t, f.camera.allStopped())

	f.session.Cancel()

	snap := f.session.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, attendance.ActionNone, snap.Action)
	assert.Nil(t, snap.Location.Coordinate)
	assert.Equal(t, capture.StatusClosed, snap.Capture.Status)
	assert.True(t, f.camera.allStopped())
}

func TestSession_InvalidTransitions(t *testing.T) {
	f := newFixture(t, "08:12")
	ctx := context.Background()

	_, err := f.session.Submit(ctx)
	assert.ErrorIs(t, err, attendance.ErrValidation)
	assert.ErrorIs(t, f.session.Capture(), ErrInvalidTransition)
	assert.ErrorIs(t, f.session.RefreshLocation(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, f.session.Start(ctx, attendance.ActionNone), attendance.ErrValidation)

	require.NoError(t, f.session.Start(ctx, attendance.ActionClockIn))
	assert.ErrorIs(t, f.session.Start(ctx, attendance.ActionClockIn), ErrInvalidTransition)
}

// blockingLoader holds GetScheduleToday until release is closed.
type blockingLoader struct {
	*server
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLoader) GetScheduleToday(ctx context.Context) (*schedule.ScheduleForToday, error) {
	close(l.entered)
	<-l.release
	return l.server.GetScheduleToday(ctx)
}

// blockingPositioner answers only after release is closed.
type blockingPositioner struct {
	release chan struct{}
}

func (p *blockingPositioner) CurrentPosition(ctx context.Context) (attendance.GeoCoordinate, error) {
	select {
	case <-p.release:
		return attendance.GeoCoordinate{Latitude: -6.2, Longitude: 106.8}, nil
	case <-ctx.Done():
		return attendance.GeoCoordinate{}, ctx.Err()
	}
}

func TestSession_ResetDuringLoadOpensNothing(t *testing.T) {
	f := newFixture(t, "08:12")
	loader := &blockingLoader{server: f.server, entered: make(chan struct{}), release: make(chan struct{})}
	cam := &camera{}
	controller := capture.NewController(cam,
		capture.WithFrameClock(capture.IntervalClock(time.Millisecond)),
		capture.WithClock(clockAt("08:12")),
	)
	s := New(geolocation.New(f.positioner), controller, submission.NewCoordinator(f.server), loader,
		WithPolicy(shift.Policy{PreWindow: 15 * time.Minute}),
		WithClock(clockAt("08:12")),
	)
	t.Cleanup(s.Reset)

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background(), attendance.ActionClockIn) }()

	<-loader.entered
	s.Reset()
	close(loader.release)

	err := <-errc
	assert.ErrorIs(t, err, attendance.ErrSuperseded)

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, capture.StatusClosed, snap.Capture.Status)
	assert.Nil(t, snap.Location.Coordinate)
	assert.True(t, cam.allStopped())
	cam.mu.Lock()
	assert.Empty(t, cam.streams, "camera must not open after teardown")
	cam.mu.Unlock()
}

func TestSession_CaptureBeforeLocationResolves(t *testing.T) {
	f := newFixture(t, "08:12")
	pos := &blockingPositioner{release: make(chan struct{})}
	cam := &camera{}
	controller := capture.NewController(cam,
		capture.WithFrameClock(capture.IntervalClock(time.Millisecond)),
		capture.WithClock(clockAt("08:12")),
	)
	s := New(geolocation.New(pos), controller, submission.NewCoordinator(f.server), f.server,
		WithPolicy(shift.Policy{PreWindow: 15 * time.Minute}),
		WithClock(clockAt("08:12")),
	)
	t.Cleanup(s.Reset)

	errc := make(chan error, 1)
	go func() { errc <- s.Start(context.Background(), attendance.ActionClockIn) }()

	require.Eventually(t, func() bool {
		g := s.Snapshot().Capture.Gate
		return g.Ready && g.Detected
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Capture())
	snap := s.Snapshot()
	assert.Equal(t, StateAcquiring, snap.State, "still waiting for the coordinate")
	assert.NotNil(t, snap.Capture.Still)

	close(pos.release)
	require.NoError(t, <-errc)

	snap = s.Snapshot()
	assert.Equal(t, StateReadyToSubmit, snap.State)
	require.NotNil(t, snap.Location.Coordinate)
	assert.NotNil(t, snap.Capture.Still)
}
