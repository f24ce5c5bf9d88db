package capture

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Presence is one detection result.
type Presence struct {
	Present    bool
	Confidence float64
}

// Detector checks a frame for a live face. Init may fail; the gate then falls back to NullDetector.
type Detector interface {
	Init(ctx context.Context) error
	Detect(ctx context.Context, frame image.Image) (Presence, error)
}

// NullDetector reports a face on every frame.
type NullDetector struct{}

func (NullDetector) Init(context.Context) error { return nil }

func (NullDetector) Detect(context.Context, image.Image) (Presence, error) {
	return Presence{Present: true, Confidence: 1}, nil
}

// detectionWidth is the width frames are scaled to before detection.
const detectionWidth = 320

// downscale returns img scaled to at most maxWidth pixels wide, keeping the aspect ratio.
func downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth || b.Dx() == 0 {
		return img
	}

	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// VarianceDetector is a pure-Go presence heuristic. A flat or blank frame
// (covered lens, empty wall, printed photo under flat light) has low intensity
// variance and few edges; a face in front of the camera has both.
type VarianceDetector struct {
	VarianceThreshold float64
	MinConfidence     float64
}

func NewVarianceDetector() *VarianceDetector {
	return &VarianceDetector{VarianceThreshold: 200, MinConfidence: 0.35}
}

func (d *VarianceDetector) Init(context.Context) error { return nil }

func (d *VarianceDetector) Detect(ctx context.Context, frame image.Image) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return Presence{}, err
	}

	variance := grayVariance(frame)
	edges := edgeDensity(frame)

	confidence := normalize(variance, 0, 4000)*0.6 + math.Min(edges*4, 1)*0.4

	return Presence{
		Present:    variance > d.VarianceThreshold && confidence >= d.MinConfidence,
		Confidence: confidence,
	}, nil
}

func gray(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
}

func grayVariance(img image.Image) float64 {
	b := img.Bounds()

	var sum, sumSq float64
	count := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := gray(img, x, y)
			sum += v
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0
	}

	mean := sum / float64(count)
	return sumSq/float64(count) - mean*mean
}

func edgeDensity(img image.Image) float64 {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	edges, total := 0, 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := gray(img, x+1, y) - gray(img, x-1, y)
			gy := gray(img, x, y+1) - gray(img, x, y-1)
			if math.Hypot(gx, gy) > 30 {
				edges++
			}
			total++
		}
	}
	return float64(edges) / float64(total)
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	n := (v - lo) / (hi - lo)
	return math.Max(0, math.Min(1, n))
}
