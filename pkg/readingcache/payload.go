package readingcache

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

// Payload is the JSON form of a Reading shared by the HTTP API, the
// WebSocket feed and MQTT. Measurement is null before the first telegram.
type Payload struct {
	Measurement *types.Measurement    `json:"measurement"`
	State       types.ConnectionState `json:"state"`
	Updated     *time.Time            `json:"updated"`
	AgeSeconds  *float64              `json:"age_seconds"`
	Stale       bool                  `json:"stale"`
}

// Payload renders r. A present reading older than staleAfter is marked
// stale; staleAfter <= 0 disables the check.
func (r Reading) Payload(staleAfter time.Duration) Payload {
	p := Payload{State: r.State}
	if !r.Present {
		return p
	}
	m := r.Measurement
	updated := r.Updated
	age := r.Age.Seconds()
	p.Measurement = &m
	p.Updated = &updated
	p.AgeSeconds = &age
	p.Stale = staleAfter > 0 && r.Age > staleAfter
	return p
}

func (p Payload) ToJsonBytes() []byte {
	b, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal reading payload", "error", err)
		return nil
	}
	return b
}

// PayloadFromJsonBytes returns nil when b is not a payload.
func PayloadFromJsonBytes(b []byte) *Payload {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	return &p
}
