package geolocation

import (
	"context"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
)

// StaticPositioner reports a fixed position, for kiosks mounted at a known place.
type StaticPositioner struct {
	Coordinate attendance.GeoCoordinate
	Err        error
}

func (p StaticPositioner) CurrentPosition(ctx context.Context) (attendance.GeoCoordinate, error) {
	if err := ctx.Err(); err != nil {
		return attendance.GeoCoordinate{}, err
	}
	if p.Err != nil {
		return attendance.GeoCoordinate{}, p.Err
	}
	return p.Coordinate, nil
}
