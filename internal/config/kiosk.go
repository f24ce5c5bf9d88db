package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v6"
)

// KioskConfig configures the client-side attendance engine.
type KioskConfig struct {
	BaseURL     string        `env:"HRIS_BASE_URL" envDefault:"http://localhost:8080"`
	AccessToken string        `env:"HRIS_ACCESS_TOKEN"`
	Timeout     time.Duration `env:"HRIS_TIMEOUT" envDefault:"15s"`

	GeoTimeout  time.Duration `env:"GEO_TIMEOUT" envDefault:"10s"`
	GeocoderURL string        `env:"GEOCODER_URL"`
	Latitude    float64       `env:"KIOSK_LATITUDE"`
	Longitude   float64       `env:"KIOSK_LONGITUDE"`

	CameraSource  string        `env:"CAMERA_SOURCE"`
	CameraWidth   int           `env:"CAMERA_WIDTH" envDefault:"1280"`
	CameraHeight  int           `env:"CAMERA_HEIGHT" envDefault:"720"`
	CameraMirror  bool          `env:"CAMERA_MIRROR" envDefault:"true"`
	Detector      string        `env:"DETECTOR" envDefault:"variance"`
	CascadePath   string        `env:"DETECTOR_CASCADE" envDefault:"haarcascade_frontalface_default.xml"`
	FrameInterval time.Duration `env:"FRAME_INTERVAL" envDefault:"33ms"`

	PreWindow time.Duration `env:"ATTENDANCE_PRE_WINDOW" envDefault:"60m"`
}

func LoadKiosk() (*KioskConfig, error) {
	loadDotEnv()

	config := &KioskConfig{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return config, nil
}

// Validate checks the settings a run cannot start without.
func (c *KioskConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("HRIS_BASE_URL is invalid: %w", err)
	}
	if c.AccessToken == "" {
		return errors.New("HRIS_ACCESS_TOKEN is required")
	}
	if c.GeoTimeout <= 0 {
		return errors.New("GEO_TIMEOUT must be positive")
	}
	switch c.Detector {
	case "none", "variance", "gocv":
	default:
		return fmt.Errorf("DETECTOR must be one of: none, variance, gocv (got %q)", c.Detector)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return errors.New("CAMERA_WIDTH and CAMERA_HEIGHT must be positive")
	}
	return nil
}
