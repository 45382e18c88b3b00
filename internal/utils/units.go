package utils

// Conversion factors for imperial provider data.
const (
	KilometersPerMile = 1.60934
	MetersPerFoot     = 0.3048
)

// MilesToKilometers converts a length in miles to kilometers.
func MilesToKilometers(miles float64) float64 {
	return miles * KilometersPerMile
}

// FeetToMeters converts an elevation in feet to meters.
func FeetToMeters(feet float64) float64 {
	return feet * MetersPerFoot
}

// ValidCoordinates reports whether lat/lng form a usable coordinate
// pair. (0, 0) is rejected: no provider in use has trails at Null
// Island, and it is the usual placeholder for missing data.
func ValidCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
