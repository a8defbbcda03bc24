package types

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Measurement is one merged set of station values.
// A nil field means the station did not report that sensor, which is
// not the same as a reported zero (e.g. 0 mm precipitation).
// Values are never modified after decoding, copies may share pointers.
type Measurement struct {
	Timestamp time.Time `json:"timestamp"`

	Temperature   *float64 `json:"temperature_c"`
	Humidity      *float64 `json:"humidity_pct"`
	DewPoint      *float64 `json:"dew_point_c"`
	WindSpeed     *float64 `json:"wind_speed_ms"`
	WindDirection *float64 `json:"wind_direction_deg"`
	Precipitation *float64 `json:"precipitation_mm"`
	AirPressure   *float64 `json:"air_pressure_hpa"`
}

// HasValues reports whether at least one sensor value is set.
func (m Measurement) HasValues() bool {
	return m.Temperature != nil || m.Humidity != nil || m.DewPoint != nil ||
		m.WindSpeed != nil || m.WindDirection != nil ||
		m.Precipitation != nil || m.AirPressure != nil
}

// ToJsonBytes returns nil when a value cannot be encoded, e.g. NaN.
func (m Measurement) ToJsonBytes() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		slog.Error("marshal measurement", "error", err)
		return nil
	}
	return b
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 {
	return &v
}
