package config

import (
	"strings"
	"time"
)

type Config struct {
	Serial SerialConfig `toml:"serial"`
	Poller PollerConfig `toml:"poller"`
	Web    WebConfig    `toml:"web"`
	MQTT   MQTTConfig   `toml:"mqtt"`
	Log    LogConfig    `toml:"log"`
}

type SerialConfig struct {
	Device   string `toml:"device"`
	Baudrate uint   `toml:"baudrate"`
	DataBits uint   `toml:"data_bits"`
	// N, E or O
	Parity   string `toml:"parity"`
	StopBits uint   `toml:"stop_bits"`
	RTSCTS   bool   `toml:"rtscts"`
	// Enforced by the tty in steps of 100ms, at most 25.5s.
	ReadTimeout Duration `toml:"read_timeout"`
}

type PollerConfig struct {
	// Consecutive decode failures before the station is reported degraded.
	FailureThreshold int      `toml:"failure_threshold"`
	BackoffBase      Duration `toml:"backoff_base"`
	BackoffMax       Duration `toml:"backoff_max"`
	// Readings older than this are flagged stale by the API. 0 disables.
	StaleAfter Duration `toml:"stale_after"`
}

type WebConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
}

// MQTTConfig is optional. An empty broker disables publishing.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	QoS      byte   `toml:"qos"`
}

type LogConfig struct {
	// debug, info, warn or error
	Level string `toml:"level"`
}

// Duration reads and writes human readable durations like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
