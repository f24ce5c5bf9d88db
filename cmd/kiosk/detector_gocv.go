//go:build gocv

package main

import (
	"github.com/cmlabs-hris/hris-attendance-go/internal/config"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
)

func newDetector(cfg *config.KioskConfig) capture.Detector {
	switch cfg.Detector {
	case "none":
		return capture.NullDetector{}
	case "gocv":
		return capture.NewCascadeDetector(cfg.CascadePath)
	}
	return capture.NewVarianceDetector()
}
