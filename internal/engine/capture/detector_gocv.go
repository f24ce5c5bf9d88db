//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeDetector finds frontal faces with an OpenCV Haar cascade.
type CascadeDetector struct {
	CascadePath string
	MinFaceSize int

	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	loaded     bool
}

func NewCascadeDetector(cascadePath string) *CascadeDetector {
	return &CascadeDetector{CascadePath: cascadePath, MinFaceSize: 60}
}

func (d *CascadeDetector) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(d.CascadePath) {
		classifier.Close()
		return fmt.Errorf("failed to load face cascade classifier %q", d.CascadePath)
	}
	d.classifier = classifier
	d.loaded = true
	return nil
}

func (d *CascadeDetector) Detect(ctx context.Context, frame image.Image) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return Presence{}, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return Presence{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return Presence{}, fmt.Errorf("cascade detector not initialized")
	}

	minSize := image.Pt(d.MinFaceSize, d.MinFaceSize)
	rects := d.classifier.DetectMultiScaleWithParams(mat, 1.1, 5, 0, minSize, image.Point{})
	if len(rects) == 0 {
		return Presence{}, nil
	}
	return Presence{Present: true, Confidence: 1}, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		d.classifier.Close()
		d.loaded = false
	}
}
