// Package capture owns the camera for one attendance attempt and gates the
// photo on face presence.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
)

type Status string

const (
	StatusClosed     Status = "closed"
	StatusOpening    Status = "opening"
	StatusPreviewing Status = "previewing"
	StatusCaptured   Status = "captured"
)

// Gate is the face-presence signal. Capture is allowed only when Ready and Detected.
type Gate struct {
	Loading  bool
	Detected bool
	Ready    bool
}

// State is a snapshot of the controller.
type State struct {
	Status Status
	Gate   Gate
	Still  *Still
	Err    error
}

func (s State) IsOpen() bool {
	return s.Status == StatusOpening || s.Status == StatusPreviewing
}

// Controller holds at most one video stream at a time. Every exit path goes
// through Close, which stops the stream and waits for the detection loop to return.
type Controller struct {
	devices     MediaDevices
	detector    Detector
	clock       FrameClock
	constraints Constraints
	mirror      bool
	now         func() time.Time

	initMu       sync.Mutex
	gateDetector Detector
	failedOpen   bool

	mu         sync.Mutex
	generation uint64
	status     Status
	stream     VideoStream
	gate       Gate
	still      *Still
	err        error
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
}

type Option func(*Controller)

func WithDetector(d Detector) Option {
	return func(c *Controller) {
		if d != nil {
			c.detector = d
		}
	}
}

func WithFrameClock(fc FrameClock) Option {
	return func(c *Controller) {
		if fc != nil {
			c.clock = fc
		}
	}
}

func WithConstraints(cs Constraints) Option {
	return func(c *Controller) { c.constraints = cs }
}

// WithMirror flips stills horizontally, undoing the selfie-preview mirror of front cameras.
func WithMirror(mirror bool) Option {
	return func(c *Controller) { c.mirror = mirror }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller. A nil devices means the device has no camera.
func NewController(devices MediaDevices, opts ...Option) *Controller {
	c := &Controller{
		devices:     devices,
		detector:    NullDetector{},
		clock:       IntervalClock(DefaultFrameInterval),
		constraints: DefaultConstraints(),
		now:         time.Now,
		status:      StatusClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open acquires a stream and starts the presence gate. Any stream already held
// is closed first. Failures leave the controller closed with the error recorded.
func (c *Controller) Open(ctx context.Context) error {
	c.Close()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.status = StatusOpening
	c.gate = Gate{Loading: true}
	c.mu.Unlock()

	if c.devices == nil {
		return c.failOpen(gen, fmt.Errorf("camera: %w", attendance.ErrDeviceUnavailable))
	}

	stream, err := c.devices.OpenVideo(ctx, c.constraints)
	if err != nil {
		return c.failOpen(gen, fmt.Errorf("camera: %w", err))
	}

	c.mu.Lock()
	if gen != c.generation {
		// Closed while the stream was being negotiated.
		c.mu.Unlock()
		stream.Stop()
		return attendance.ErrSuperseded
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stream = stream
	c.status = StatusPreviewing
	c.stopLoop = cancel
	c.loopDone = done
	c.mu.Unlock()

	slog.Debug("capture: previewing", "generation", gen)
	go c.runGate(loopCtx, gen, stream, done)

	return nil
}

func (c *Controller) failOpen(gen uint64, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen == c.generation {
		c.status = StatusClosed
		c.gate = Gate{}
		c.err = err
	}
	slog.Warn("capture: open failed", "error", err)
	return err
}

// Capture freezes the current frame. It is a no-op returning ErrCaptureNotAllowed
// unless the preview is live and the gate reports a ready detection. On success
// the stream is released before Capture returns.
func (c *Controller) Capture() (*Still, error) {
	c.mu.Lock()

	if c.status != StatusPreviewing || !c.gate.Ready || !c.gate.Detected {
		c.mu.Unlock()
		return nil, attendance.ErrCaptureNotAllowed
	}

	frame, err := c.stream.Frame()
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("camera: failed to read frame: %w", err)
	}

	still, err := encodeStill(frame, c.mirror, c.now())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.still = still
	c.status = StatusCaptured
	c.gate = Gate{}
	done := c.releaseLocked()
	c.mu.Unlock()

	waitLoop(done)
	slog.Debug("capture: still captured", "width", still.Width, "height", still.Height)

	return still, nil
}

// Retake discards the still and opens the camera again.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	c.still = nil
	c.mu.Unlock()

	return c.Open(ctx)
}

// Close stops the stream and clears all capture and detection state. It returns
// only after the detection loop has exited, so no frame callback runs afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.generation++
	done := c.releaseLocked()
	c.status = StatusClosed
	c.gate = Gate{}
	c.still = nil
	c.err = nil
	c.mu.Unlock()

	waitLoop(done)
}

// releaseLocked stops the loop and the stream. The caller waits on the returned channel after unlocking.
func (c *Controller) releaseLocked() chan struct{} {
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	done := c.loopDone
	c.loopDone = nil
	return done
}

func waitLoop(done chan struct{}) {
	if done != nil {
		<-done
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{Status: c.status, Gate: c.gate, Still: c.still, Err: c.err}
}

// Still returns the captured still, or nil.
func (c *Controller) Still() *Still {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.still
}

// initDetector loads the detector once. When it fails the gate fails open.
// A load interrupted by Close is retried on the next Open.
func (c *Controller) initDetector(ctx context.Context) (Detector, bool) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.gateDetector != nil {
		return c.gateDetector, c.failedOpen
	}

	if err := c.detector.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		slog.Warn("capture: face detector unavailable, capture always allowed",
			"error", fmt.Errorf("%w: %w", attendance.ErrDetectorInit, err))
		c.gateDetector = NullDetector{}
		c.failedOpen = true
		return c.gateDetector, true
	}

	c.gateDetector = c.detector
	return c.gateDetector, false
}

func (c *Controller) runGate(ctx context.Context, gen uint64, stream VideoStream, done chan struct{}) {
	defer close(done)

	detector, failedOpen := c.initDetector(ctx)
	if detector == nil || !c.updateGate(gen, Gate{Ready: true, Detected: failedOpen}) {
		return
	}

	ticks, stop := c.clock.Start()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		frame, err := stream.Frame()
		if err != nil {
			slog.Debug("capture: frame unavailable", "error", err)
			continue
		}

		presence, err := detector.Detect(ctx, downscale(frame, detectionWidth))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("capture: detection failed", "error", err)
			presence = Presence{}
		}

		if !c.updateGate(gen, Gate{Ready: true, Detected: failedOpen || presence.Present}) {
			return
		}
	}
}

// updateGate publishes g if the loop still belongs to the live preview.
func (c *Controller) updateGate(gen uint64, g Gate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.status != StatusPreviewing {
		return false
	}
	c.gate = g
	return true
}
