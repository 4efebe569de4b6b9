package geo

import (
	"fmt"
	"math"
	"strings"

	"pharmacy-delivery-service/internal/domain"
)

const polylinePrecision = 1e5

// EncodePolyline encodes a path with the standard 5-decimal polyline algorithm.
func EncodePolyline(path []domain.Coordinates) string {
	var b strings.Builder
	var prevLat, prevLng int64

	for _, c := range path {
		lat := int64(math.Round(c.Lat * polylinePrecision))
		lng := int64(math.Round(c.Lng * polylinePrecision))

		encodeValue(&b, lat-prevLat)
		encodeValue(&b, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return b.String()
}

func encodeValue(b *strings.Builder, v int64) {
	// Zig-zag so the sign lands in the lowest bit.
	u := v << 1
	if v < 0 {
		u = ^u
	}

	for u >= 0x20 {
		b.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	b.WriteByte(byte(u + 63))
}

// DecodePolyline is the inverse of EncodePolyline.
// A truncated string or a character outside the encoding alphabet is a validation error.
func DecodePolyline(encoded string) ([]domain.Coordinates, error) {
	path := make([]domain.Coordinates, 0, len(encoded)/4)
	var lat, lng int64

	for i := 0; i < len(encoded); {
		dLat, next, err := decodeValue(encoded, i)
		if err != nil {
			return nil, fmt.Errorf("decode polyline: latitude at offset %d: %w", i, err)
		}

		dLng, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, fmt.Errorf("decode polyline: longitude at offset %d: %w", i, err)
		}
		i = next

		lat += dLat
		lng += dLng

		path = append(path, domain.Coordinates{
			Lat: float64(lat) / polylinePrecision,
			Lng: float64(lng) / polylinePrecision,
		})
	}

	return path, nil
}

func decodeValue(s string, i int) (int64, int, error) {
	var result int64
	var shift uint

	for {
		if i >= len(s) {
			return 0, i, fmt.Errorf("%w: truncated polyline", domain.ErrValidation)
		}

		chunk := int64(s[i]) - 63
		i++
		if chunk < 0 || chunk > 0x3f {
			return 0, i, fmt.Errorf("%w: invalid polyline character %q", domain.ErrValidation, s[i-1])
		}

		result |= (chunk & 0x1f) << shift
		shift += 5

		if chunk < 0x20 {
			break
		}
		if shift > 60 {
			return 0, i, fmt.Errorf("%w: polyline value overflows", domain.ErrValidation)
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}
