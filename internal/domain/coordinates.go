package domain

import (
	"fmt"
	"math"
)

// Immutable WGS-84 coordinates in degrees.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Validate reports whether the coordinates fall inside the WGS-84 ranges.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("%w: coordinates must be numbers", ErrValidation)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrValidation, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrValidation, c.Lng)
	}
	return nil
}

// Return coordinates as [lon, lat] for external API compatibility.
func (c Coordinates) CoordsToList() []float64 { return []float64{c.Lng, c.Lat} }

// Ptr returns a pointer to a copy of c.
func (c Coordinates) Ptr() *Coordinates { return &c }
