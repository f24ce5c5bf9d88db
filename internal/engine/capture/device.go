package capture

import (
	"context"
	"image"
	"time"
)

// Constraints describe the requested video stream.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

func DefaultConstraints() Constraints {
	return Constraints{FacingMode: "user", Width: 1280, Height: 720}
}

// MediaDevices hands out exclusive video streams.
type MediaDevices interface {
	// OpenVideo negotiates a stream. Errors should wrap attendance.ErrPermissionDenied
	// or attendance.ErrDeviceUnavailable where that is the cause.
	OpenVideo(ctx context.Context, c Constraints) (VideoStream, error)
}

// VideoStream is a live source of frames. Frame and Stop may be called concurrently.
type VideoStream interface {
	// Frame returns the current frame at the stream's native resolution.
	Frame() (image.Image, error)
	// Stop releases every track. It is idempotent.
	Stop()
}

// FrameClock drives the detection loop, one tick per rendered frame.
type FrameClock interface {
	Start() (ticks <-chan time.Time, stop func())
}

// DefaultFrameInterval approximates a 30fps animation-frame cadence.
const DefaultFrameInterval = 33 * time.Millisecond

type intervalClock time.Duration

// IntervalClock ticks every d.
func IntervalClock(d time.Duration) FrameClock {
	if d <= 0 {
		d = DefaultFrameInterval
	}
	return intervalClock(d)
}

func (c intervalClock) Start() (<-chan time.Time, func()) {
	t := time.NewTicker(time.Duration(c))
	return t.C, t.Stop
}
