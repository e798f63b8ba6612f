package models

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (p GeoPoint) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// GeoFence is a circular presence boundary around a classroom.
type GeoFence struct {
	ClassroomID string   `json:"classroom_id"`
	Name        string   `json:"name,omitempty"`
	Center      GeoPoint `json:"center"`
	RadiusM     float64  `json:"radius_m"`
}
