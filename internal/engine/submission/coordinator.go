// Package submission sends one clock event to the attendance server and
// reconciles local state with the server's answer.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
)

// Backend is the authoritative attendance server.
type Backend interface {
	ClockIn(ctx context.Context, payload attendance.ClockPayload) (*attendance.SubmissionResult, error)
	ClockOut(ctx context.Context, payload attendance.ClockPayload) (*attendance.SubmissionResult, error)
	GetTodayAttendance(ctx context.Context) (*attendance.TodayAttendance, error)
}

// Attempt is everything one submission needs.
type Attempt struct {
	Action      attendance.Action
	Coordinate  *attendance.GeoCoordinate
	Image       []byte
	ContentType string
}

// Result is a confirmed submission. Today is the server's record fetched after the write.
type Result struct {
	Message  string
	Response *attendance.AttendanceResponse
	Today    *attendance.TodayAttendance
}

type Coordinator struct {
	backend  Backend
	inFlight atomic.Bool

	mu    sync.RWMutex
	today *attendance.TodayAttendance
}

func NewCoordinator(backend Backend) *Coordinator {
	return &Coordinator{backend: backend}
}

// Submit sends attempt. Only one submission runs at a time; a concurrent call
// fails with ErrSubmissionInFlight without touching the network.
func (c *Coordinator) Submit(ctx context.Context, attempt Attempt) (*Result, error) {
	if err := attempt.validate(); err != nil {
		return nil, err
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, attendance.ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	payload := attendance.ClockPayload{
		Coordinate:       *attempt.Coordinate,
		Image:            attempt.Image,
		ImageContentType: attempt.ContentType,
	}

	var (
		res *attendance.SubmissionResult
		err error
	)
	switch attempt.Action {
	case attendance.ActionClockIn:
		res, err = c.backend.ClockIn(ctx, payload)
	case attendance.ActionClockOut:
		res, err = c.backend.ClockOut(ctx, payload)
	}
	if err != nil {
		err = classify(err)
		slog.Error("submission failed", "action", attempt.Action, "error", err)
		return nil, err
	}

	result := &Result{Message: res.Message, Response: res.Attendance}

	today, err := c.backend.GetTodayAttendance(ctx)
	if err != nil {
		// The write is confirmed; fall back to the record the server echoed.
		slog.Warn("submission: refetch of today's attendance failed", "error", err)
		if res.Attendance != nil {
			echoed := res.Attendance.TodayAttendance
			today = &echoed
		}
	}
	result.Today = today

	c.mu.Lock()
	c.today = today
	c.mu.Unlock()

	slog.Info("submission accepted", "action", attempt.Action, "message", res.Message)
	return result, nil
}

// InFlight reports whether a submission is pending.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Today returns the last server-confirmed record, or nil.
func (c *Coordinator) Today() *attendance.TodayAttendance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.today
}

// Refresh refetches today's record from the server.
func (c *Coordinator) Refresh(ctx context.Context) (*attendance.TodayAttendance, error) {
	today, err := c.backend.GetTodayAttendance(ctx)
	if err != nil {
		return nil, classify(err)
	}

	c.mu.Lock()
	c.today = today
	c.mu.Unlock()

	return today, nil
}

func (a Attempt) validate() error {
	if !a.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", attendance.ErrValidation, a.Action)
	}
	if a.Coordinate == nil {
		return fmt.Errorf("%w: location is missing", attendance.ErrValidation)
	}
	if len(a.Image) == 0 {
		return fmt.Errorf("%w: photo is missing", attendance.ErrValidation)
	}
	if err := a.Coordinate.Validate(); err != nil {
		return fmt.Errorf("%w: %w", attendance.ErrValidation, err)
	}
	return nil
}

// classify keeps server rejections as they are and treats everything else as a transport failure.
func classify(err error) error {
	var rejection *attendance.RejectionError
	switch {
	case errors.As(err, &rejection):
		return err
	case errors.Is(err, attendance.ErrTransport),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", attendance.ErrTransport, err)
	}
}

// ResetsSession reports whether a failed submission must end the attempt.
// Rejections and transport failures keep the captured photo for a retry.
func ResetsSession(err error) bool {
	return errors.Is(err, attendance.ErrPermissionDenied) ||
		errors.Is(err, attendance.ErrDeviceUnavailable)
}
