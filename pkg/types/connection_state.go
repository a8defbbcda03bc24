package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type LinkStatus uint8

const (
	Disconnected LinkStatus = iota
	Connecting
	Connected
	// Degraded means the port is open but recent telegrams failed to decode.
	Degraded
)

func (s LinkStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	}
	return "unknown"
}

func (s LinkStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionState is the link status plus the instant it was entered.
type ConnectionState struct {
	Status LinkStatus `json:"status"`
	Since  time.Time  `json:"since"`
}

func (c ConnectionState) String() string {
	if c.Since.IsZero() {
		return c.Status.String()
	}
	return c.Status.String() + " since " + c.Since.Format(time.RFC3339)
}

func (c ConnectionState) MarshalJSON() ([]byte, error) {
	type plain ConnectionState
	if c.Since.IsZero() {
		return json.Marshal(struct {
			Status LinkStatus `json:"status"`
			Since  *time.Time `json:"since"`
		}{Status: c.Status})
	}
	return json.Marshal(plain(c))
}

func (s *LinkStatus) UnmarshalText(b []byte) error {
	for _, v := range []LinkStatus{Disconnected, Connecting, Connected, Degraded} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown link status %q", b)
}
