// Package sphere provides angular math on the celestial sphere.
//
// All functions take and return radians unless the name says otherwise.
// Right ascension grows eastward in [0, 2π), declination is positive
// north in [-π/2, π/2].
package sphere

import "math"

const (
	// DegToRad converts degrees to radians.
	DegToRad = math.Pi / 180.0

	// RadToDeg converts radians to degrees.
	RadToDeg = 180.0 / math.Pi

	// HoursToDeg converts hours of right ascension to degrees.
	HoursToDeg = 15.0

	// HalfPi is π/2, the declination of the north celestial pole.
	HalfPi = math.Pi / 2

	// TwoPi is the full circle in radians.
	TwoPi = 2 * math.Pi
)

// Separation returns the great-circle angular distance between two sky
// positions, in radians. It uses the haversine form, which stays
// accurate for small separations where the spherical law of cosines
// loses precision.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	sdDec := math.Sin((dec2 - dec1) / 2)
	sdRA := math.Sin((ra2 - ra1) / 2)

	h := sdDec*sdDec + math.Cos(dec1)*math.Cos(dec2)*sdRA*sdRA
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}

// NormalizeRA wraps a right ascension into [0, 2π).
func NormalizeRA(ra float64) float64 {
	ra = math.Mod(ra, TwoPi)
	if ra < 0 {
		ra += TwoPi
	}
	return ra
}

// ClampDec limits a declination to [-π/2, π/2].
func ClampDec(dec float64) float64 {
	if dec < -HalfPi {
		return -HalfPi
	}
	if dec > HalfPi {
		return HalfPi
	}
	return dec
}

// RADistance returns the smallest absolute difference between two right
// ascensions, accounting for wrap-around, in [0, π].
func RADistance(ra1, ra2 float64) float64 {
	d := math.Abs(NormalizeRA(ra1) - NormalizeRA(ra2))
	if d > math.Pi {
		d = TwoPi - d
	}
	return d
}
