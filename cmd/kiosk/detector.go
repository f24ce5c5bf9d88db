//go:build !gocv

package main

import (
	"log/slog"

	"github.com/cmlabs-hris/hris-attendance-go/internal/config"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
)

func newDetector(cfg *config.KioskConfig) capture.Detector {
	switch cfg.Detector {
	case "none":
		return capture.NullDetector{}
	case "gocv":
		slog.Warn("built without gocv, falling back to the variance detector")
	}
	return capture.NewVarianceDetector()
}
