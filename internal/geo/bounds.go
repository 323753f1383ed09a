package geo

// Bounds is an axis-aligned geographic bounding box.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// SanFrancisco bounds the service area. Alerts and geocoding results outside
// this box are rejected.
var SanFrancisco = Bounds{
	MinLat: 37.70,
	MaxLat: 37.83,
	MinLng: -122.52,
	MaxLng: -122.35,
}

// Contains reports whether the coordinate lies inside the bounds.
func (b Bounds) Contains(lat, lng float64) bool {
	if !Valid(lat, lng) {
		return false
	}
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}
