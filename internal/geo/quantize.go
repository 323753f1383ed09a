// Package geo provides coordinate utilities for grouping reports by location.
package geo

import (
	"fmt"
	"math"
)

// KeyPrecision is the number of decimal places used when grouping coordinates.
// Six decimal places is roughly 0.1m of latitude, fine enough that two reports
// sharing a quantized key were filed at the same spot.
const KeyPrecision = 6

// quantizeScale is 10^KeyPrecision, precomputed so Quantize avoids repeated
// math.Pow calls.
const quantizeScale = 1e6

// Quantize rounds a coordinate to KeyPrecision decimal places.
// Rounding is half-away-from-zero, so values differing only in the seventh
// decimal place and beyond collapse to the same quantized value.
// NaN and infinite inputs are returned unchanged.
func Quantize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*quantizeScale) / quantizeScale
}

// Key builds the grouping key for a coordinate pair. Both components are
// quantized and formatted at fixed precision, making grouping an explicit
// string comparison rather than floating-point equality.
//
// Key must only be called for coordinates where Valid returns true; invalid
// coordinates have no meaningful grouping key.
func Key(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", Quantize(lat), Quantize(lng))
}

// Valid reports whether lat and lng form a usable coordinate pair.
// NaN, infinite, and out-of-range values are rejected.
func Valid(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
