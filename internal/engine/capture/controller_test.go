package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu      sync.Mutex
	img     image.Image
	stopped bool
	stops   int
}

func newFakeStream(w, h int) *fakeStream {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return &fakeStream{img: img}
}

func (s *fakeStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errStreamStopped
	}
	return s.img, nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stops++
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevices struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	gate    chan struct{}
	opens   int
}

func (d *fakeDevices) OpenVideo(ctx context.Context, c Constraints) (VideoStream, error) {
	d.mu.Lock()
	d.opens++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if d.err != nil {
		return nil, d.err
	}

	s := newFakeStream(64, 48)
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDevices) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[i]
}

type manualClock struct {
	ticks   chan time.Time
	running atomic.Int32
}

func newManualClock() *manualClock {
	return &manualClock{ticks: make(chan time.Time)}
}

func (c *manualClock) Start() (<-chan time.Time, func()) {
	c.running.Add(1)
	return c.ticks, func() { c.running.Add(-1) }
}

// tick blocks until the detection loop takes the frame.
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case c.ticks <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("detection loop did not take the frame")
	}
}

type fakeDetector struct {
	initErr error
	present atomic.Bool
	calls   atomic.Int32
}

func (d *fakeDetector) Init(context.Context) error { return d.initErr }

func (d *fakeDetector) Detect(ctx context.Context, frame image.Image) (Presence, error) {
	d.calls.Add(1)
	return Presence{Present: d.present.Load()}, nil
}

func newTestController(t *testing.T, devices MediaDevices, det Detector, opts ...Option) (*Controller, *manualClock) {
	t.Helper()
	clock := newManualClock()
	opts = append([]Option{WithDetector(det), WithFrameClock(clock)}, opts...)
	c := NewController(devices, opts...)
	t.Cleanup(c.Close)
	return c, clock
}

func waitReady(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State().Gate.Ready }, time.Second, time.Millisecond)
}

func TestController_CaptureGatedOnDetection(t *testing.T) {
	devices := &fakeDevices{}
	det := &fakeDetector{}
	c, clock := newTestController(t, devices, det)

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, StatusPreviewing, c.State().Status)
	waitReady(t, c)

	clock.tick(t)
	still, err := c.Capture()
	assert.ErrorIs(t, err, attendance.ErrCaptureNotAllowed)
	assert.Nil(t, still)
	assert.Equal(t, StatusPreviewing, c.State().Status)
	assert.False(t, devices.stream(0).isStopped())

	det.present.Store(true)
	clock.tick(t)
	require.Eventually(t, func() bool { return c.State().Gate.Detected }, time.Second, time.Millisecond)

	still, err = c.Capture()
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, "image/jpeg", still.ContentType)
	assert.Equal(t, 64, still.Width)
	assert.Equal(t, 48, still.Height)

	decoded, err := jpeg.Decode(bytes.NewReader(still.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), decoded.Bounds())

	state := c.State()
	assert.Equal(t, StatusCaptured, state.Status)
	assert.Same(t, still, state.Still)
	assert.True(t, devices.stream(0).isStopped(), "stream is released on capture")
	assert.Equal(t, int32(0), clock.running.Load(), "detection loop has exited")

	_, err = c.Capture()
	assert.ErrorIs(t, err, attendance.ErrCaptureNotAllowed, "only one still per preview")
}

func TestController_DetectorInitFailureFailsOpen(t *testing.T) {
	devices := &fakeDevices{}
	det := &fakeDetector{initErr: errors.New("model download failed")}
	c, _ := newTestController(t, devices, det)

	require.NoError(t, c.Open(context.Background()))
	require.Eventually(t, func() bool {
		g := c.State().Gate
		return g.Ready && g.Detected
	}, time.Second, time.Millisecond)

	still, err := c.Capture()
	require.NoError(t, err)
	assert.NotNil(t, still)
	assert.Equal(t, int32(0), det.calls.Load())
}

func TestController_OpenFailures(t *testing.T) {
	tests := []struct {
		name    string
		devices MediaDevices
		want    error
	}{
		{"no camera", nil, attendance.ErrDeviceUnavailable},
		{"permission denied", &fakeDevices{err: attendance.ErrPermissionDenied}, attendance.ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, tt.devices, &fakeDetector{})

			err := c.Open(context.Background())
			assert.ErrorIs(t, err, tt.want)

			state := c.State()
			assert.Equal(t, StatusClosed, state.Status)
			assert.ErrorIs(t, state.Err, tt.want)
			assert.False(t, state.IsOpen())
		})
	}
}

func TestController_OpenFailureDoesNotRetry(t *testing.T) {
	devices := &fakeDevices{err: attendance.ErrPermissionDenied}
	c, _ := newTestController(t, devices, &fakeDetector{})

	_ = c.Open(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, devices.opens)
}

func TestController_CloseStopsEverything(t *testing.T) {
	devices := &fakeDevices{}
	det := &fakeDetector{}
	det.present.Store(true)
	c, clock := newTestController(t, devices, det)

	require.NoError(t, c.Open(context.Background()))
	waitReady(t, c)
	clock.tick(t)

	c.Close()

	assert.True(t, devices.stream(0).isStopped())
	assert.Equal(t, int32(0), clock.running.Load())
	assert.Equal(t, State{Status: StatusClosed}, c.State())

	calls := det.calls.Load()
	select {
	case clock.ticks <- time.Now():
		t.Fatal("a frame callback is still pending after Close")
	default:
	}
	assert.Equal(t, calls, det.calls.Load())
}

func TestController_OpenForceClosesPreviousStream(t *testing.T) {
	devices := &fakeDevices{}
	c, _ := newTestController(t, devices, &fakeDetector{})

	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Open(context.Background()))

	assert.True(t, devices.stream(0).isStopped())
	assert.False(t, devices.stream(1).isStopped())
	assert.Equal(t, StatusPreviewing, c.State().Status)
}

func TestController_Retake(t *testing.T) {
	devices := &fakeDevices{}
	det := &fakeDetector{}
	det.present.Store(true)
	c, clock := newTestController(t, devices, det)

	require.NoError(t, c.Open(context.Background()))
	waitReady(t, c)
	clock.tick(t)
	require.Eventually(t, func() bool { return c.State().Gate.Detected }, time.Second, time.Millisecond)
	_, err := c.Capture()
	require.NoError(t, err)

	require.NoError(t, c.Retake(context.Background()))

	state := c.State()
	assert.Equal(t, StatusPreviewing, state.Status)
	assert.Nil(t, state.Still)
	assert.Nil(t, c.Still())
	assert.False(t, devices.stream(1).isStopped())
}

func TestController_CloseWhileOpening(t *testing.T) {
	gate := make(chan struct{})
	devices := &fakeDevices{gate: gate}
	c, _ := newTestController(t, devices, &fakeDetector{})

	errc := make(chan error, 1)
	go func() { errc <- c.Open(context.Background()) }()

	require.Eventually(t, func() bool { return c.State().Status == StatusOpening }, time.Second, time.Millisecond)
	c.Close()
	close(gate)

	assert.ErrorIs(t, <-errc, attendance.ErrSuperseded)
	assert.True(t, devices.stream(0).isStopped(), "late stream is released")
	assert.Equal(t, StatusClosed, c.State().Status)
}

func TestController_MirrorFlipsStill(t *testing.T) {
	devices := &fakeDevices{}
	c, _ := newTestController(t, devices, &fakeDetector{initErr: errors.New("off")}, WithMirror(true))

	require.NoError(t, c.Open(context.Background()))
	require.Eventually(t, func() bool { return c.State().Gate.Detected }, time.Second, time.Millisecond)

	still, err := c.Capture()
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(still.Data))
	require.NoError(t, err)

	// The source red channel grows with x; mirrored, it shrinks.
	left, _, _, _ := decoded.At(2, 24).RGBA()
	right, _, _, _ := decoded.At(61, 24).RGBA()
	assert.Greater(t, left, right)
}
