package pathing

import (
	"os"
	"path/filepath"
)

// ConfigDirEnv overrides the configuration directory, e.g. for development.
const ConfigDirEnv = "LAMBRECHT_METEO_CONFIG_DIR"

func GetConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	return "/etc/lambrecht_meteo"
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "lambrecht_meteo.toml")
}

// EnsureDir creates dir and its parents when missing.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
