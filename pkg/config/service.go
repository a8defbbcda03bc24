package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/pathing"
)

// The tty read timeout (VTIME) counts tenths of a second in one byte.
const (
	MinReadTimeout = 100 * time.Millisecond
	MaxReadTimeout = 25500 * time.Millisecond
)

func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:      "/dev/ttyUSB0",
			Baudrate:    4800,
			DataBits:    8,
			Parity:      "N",
			StopBits:    1,
			ReadTimeout: Duration{10 * time.Second},
		},
		Poller: PollerConfig{
			FailureThreshold: 5,
			BackoffBase:      Duration{time.Second},
			BackoffMax:       Duration{15 * time.Minute},
			StaleAfter:       Duration{time.Minute},
		},
		Web: WebConfig{
			ListenAddress: "0.0.0.0",
			ListenPort:    8888,
		},
		MQTT: MQTTConfig{
			Topic:    "lambrecht_meteo/current",
			ClientID: "lambrecht_meteo",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config at path. A default config is written there first
// when the file does not exist yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := write(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &ValidationError{Problems: []string{"unknown keys: " + strings.Join(keys, ", ")}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func write(path string, cfg *Config) error {
	if err := pathing.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	cfgFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	s := c.Serial
	check(s.Device != "", "serial.device is empty")
	check(s.Baudrate > 0, "serial.baudrate must be positive")
	check(s.DataBits >= 5 && s.DataBits <= 8, "serial.data_bits %d not in 5..8", s.DataBits)
	check(s.Parity == "N" || s.Parity == "E" || s.Parity == "O", "serial.parity %q not one of N, E, O", s.Parity)
	check(s.StopBits == 1 || s.StopBits == 2, "serial.stop_bits %d not 1 or 2", s.StopBits)
	check(s.ReadTimeout.Duration >= MinReadTimeout && s.ReadTimeout.Duration <= MaxReadTimeout,
		"serial.read_timeout %s not in %s..%s", s.ReadTimeout, MinReadTimeout, MaxReadTimeout)

	p := c.Poller
	check(p.FailureThreshold >= 1, "poller.failure_threshold must be at least 1")
	check(p.BackoffBase.Duration > 0, "poller.backoff_base must be positive")
	check(p.BackoffMax.Duration >= p.BackoffBase.Duration, "poller.backoff_max is below backoff_base")
	check(p.StaleAfter.Duration >= 0, "poller.stale_after is negative")

	check(c.Web.ListenPort > 0 && c.Web.ListenPort < 65536, "web.listen_port %d out of range", c.Web.ListenPort)

	if c.MQTT.Broker != "" {
		check(c.MQTT.Topic != "", "mqtt.topic is empty")
		check(c.MQTT.QoS <= 2, "mqtt.qos %d not in 0..2", c.MQTT.QoS)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q unknown", c.Log.Level))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
