package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"sync"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/disintegration/imaging"
)

var errStreamStopped = errors.New("video stream stopped")

// FileCamera serves a still image file as a video stream. Kiosks without a
// camera driver point it at a snapshot written by an external grabber.
type FileCamera struct {
	Path string
}

func (f FileCamera) OpenVideo(ctx context.Context, _ Constraints) (VideoStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(f.Path, imaging.AutoOrientation(true))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", attendance.ErrDeviceUnavailable, f.Path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", attendance.ErrPermissionDenied, f.Path)
	case err != nil:
		return nil, fmt.Errorf("failed to open camera source: %w", err)
	}

	return &imageStream{frame: img}, nil
}

type imageStream struct {
	mu      sync.Mutex
	frame   image.Image
	stopped bool
}

func (s *imageStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, errStreamStopped
	}
	return s.frame, nil
}

func (s *imageStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.frame = nil
}
