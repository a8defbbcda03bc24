package esmutils

import "math"

const (
	hPaPerBar      = 1000
	hPaPerInHg     = 33.8638866667
	msPerKnot      = 1852.0 / 3600.0
	msPerKmh       = 1000.0 / 3600.0
	msPerMph       = 1609.344 / 3600.0
	degreesPerTurn = 360
)

func BarToHPa(bar float64) float64 {
	return bar * hPaPerBar
}

func HPaToBar(hPa float64) float64 {
	return hPa / hPaPerBar
}

func InHgToHPa(inHg float64) float64 {
	return inHg * hPaPerInHg
}

func HPaToInHg(hPa float64) float64 {
	return hPa / hPaPerInHg
}

// Wind speed units as sent in the MWV sentence.
func KnotsToMs(kn float64) float64 {
	return kn * msPerKnot
}

func KmhToMs(kmh float64) float64 {
	return kmh * msPerKmh
}

func MphToMs(mph float64) float64 {
	return mph * msPerMph
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, degreesPerTurn)
	if deg < 0 {
		deg += degreesPerTurn
	}
	return deg
}

// Round to the given number of decimals, used when re-encoding values.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
