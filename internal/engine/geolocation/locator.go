// Package geolocation acquires one coordinate per attendance attempt.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
)

// DefaultTimeout bounds a single positioning request.
const DefaultTimeout = 10 * time.Second

// Positioner performs one high-accuracy position fix. Implementations should
// return errors wrapping attendance.ErrDeviceUnavailable or attendance.ErrPermissionDenied.
type Positioner interface {
	CurrentPosition(ctx context.Context) (attendance.GeoCoordinate, error)
}

// Geocoder turns a coordinate into a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// State is a snapshot of the locator for the presentation layer.
type State struct {
	Loading    bool
	Coordinate *attendance.GeoCoordinate
	Err        error
}

type Locator struct {
	positioner Positioner
	geocoder   Geocoder
	timeout    time.Duration

	mu            sync.Mutex
	generation    uint64
	cancelPending context.CancelFunc
	cancelAddress context.CancelFunc
	state         State
}

type Option func(*Locator)

func WithTimeout(d time.Duration) Option {
	return func(l *Locator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithGeocoder enables best-effort address resolution.
func WithGeocoder(g Geocoder) Option {
	return func(l *Locator) { l.geocoder = g }
}

// New creates a Locator. A nil positioner means the device has no positioning capability.
func New(positioner Positioner, opts ...Option) *Locator {
	l := &Locator{
		positioner: positioner,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire requests a fresh coordinate. A newer call supersedes an older one:
// the older call returns ErrSuperseded and its result is never published.
// The coordinate is returned as soon as it is known; the address is merged into State later.
func (l *Locator) Acquire(ctx context.Context) (attendance.GeoCoordinate, error) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	l.stopLocked()

	if l.positioner == nil {
		l.state = State{Err: attendance.ErrDeviceUnavailable}
		l.mu.Unlock()
		return attendance.GeoCoordinate{}, fmt.Errorf("positioning: %w", attendance.ErrDeviceUnavailable)
	}

	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	l.cancelPending = cancel
	l.state = State{Loading: true}
	l.mu.Unlock()
	defer cancel()

	slog.Debug("geolocation: acquiring position", "generation", gen)
	coord, err := l.positioner.CurrentPosition(reqCtx)
	if err == nil {
		err = coord.Validate()
	}
	if err != nil {
		err = classify(ctx, reqCtx, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generation {
		slog.Debug("geolocation: discarding stale result", "generation", gen)
		return attendance.GeoCoordinate{}, attendance.ErrSuperseded
	}
	l.cancelPending = nil

	if err != nil {
		l.state = State{Err: err}
		slog.Warn("geolocation: acquire failed", "error", err)
		return attendance.GeoCoordinate{}, err
	}

	if coord.Address != nil && strings.TrimSpace(*coord.Address) == "" {
		coord.Address = nil
	}
	l.state = State{Coordinate: &coord}

	// A positioner that already knows the address wins over the geocoder.
	if l.geocoder != nil && coord.Address == nil {
		addrCtx, addrCancel := context.WithTimeout(context.Background(), l.timeout)
		l.cancelAddress = addrCancel
		go l.resolveAddress(addrCtx, addrCancel, gen, coord)
	}

	return coord, nil
}

func (l *Locator) resolveAddress(ctx context.Context, cancel context.CancelFunc, gen uint64, coord attendance.GeoCoordinate) {
	defer cancel()

	address, err := l.geocoder.Reverse(ctx, coord.Latitude, coord.Longitude)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("geolocation: address lookup failed", "error", err)
		}
		return
	}
	if address == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.generation || l.state.Coordinate == nil {
		return
	}
	merged := l.state.Coordinate.WithAddress(address)
	l.state.Coordinate = &merged
	l.cancelAddress = nil
}

// Coordinate returns the current coordinate, including the address if it has resolved.
func (l *Locator) Coordinate() *attendance.GeoCoordinate {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Coordinate == nil {
		return nil
	}
	c := *l.state.Coordinate
	return &c
}

func (l *Locator) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state
	if s.Coordinate != nil {
		c := *s.Coordinate
		s.Coordinate = &c
	}
	return s
}

// Reset discards the coordinate and invalidates any pending request or address lookup.
func (l *Locator) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.stopLocked()
	l.state = State{}
}

func (l *Locator) stopLocked() {
	if l.cancelPending != nil {
		l.cancelPending()
		l.cancelPending = nil
	}
	if l.cancelAddress != nil {
		l.cancelAddress()
		l.cancelAddress = nil
	}
}

// classify maps a positioning failure onto the attendance error taxonomy.
func classify(parent, req context.Context, err error) error {
	switch {
	case errors.Is(err, attendance.ErrDeviceUnavailable),
		errors.Is(err, attendance.ErrPermissionDenied),
		errors.Is(err, attendance.ErrTimeout):
		return err
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(req.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("positioning: %w", attendance.ErrTimeout)
	default:
		return fmt.Errorf("positioning: %w", err)
	}
}
