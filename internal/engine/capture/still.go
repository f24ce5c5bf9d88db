package capture

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// Still is a frozen frame, JPEG-encoded at the stream's native resolution.
type Still struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	CapturedAt  time.Time
}

const stillQuality = 90

func encodeStill(frame image.Image, mirror bool, at time.Time) (*Still, error) {
	if mirror {
		frame = imaging.FlipH(frame)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(stillQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode still: %w", err)
	}

	b := frame.Bounds()
	return &Still{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Width:       b.Dx(),
		Height:      b.Dy(),
		CapturedAt:  at,
	}, nil
}
