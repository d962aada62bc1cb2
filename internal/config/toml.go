// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Timers TimersConfig `toml:"timers"`
	Alarm  AlarmConfig  `toml:"alarm"`
	Notify NotifyConfig `toml:"notify"`
	Log    LogConfig    `toml:"log"`
}

// TimersConfig lists the timers shown on start.
type TimersConfig struct {
	Seconds []int    `toml:"seconds"`
	Labels  []string `toml:"labels"`
}

// AlarmConfig maps alarm sound settings.
type AlarmConfig struct {
	Sound   *string  `toml:"sound"`
	Volume  *float64 `toml:"volume"`
	Timeout *int     `toml:"timeout"`
	Mute    *bool    `toml:"mute"`
	Record  *bool    `toml:"record"`
}

// NotifyConfig maps desktop notification settings.
type NotifyConfig struct {
	Enabled *bool   `toml:"enabled"`
	Title   *string `toml:"title"`
	Body    *string `toml:"body"`
	Delay   *int    `toml:"delay"`
	Sound   *bool   `toml:"sound"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	File  *string `toml:"file"`
	Level *string `toml:"level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if n := len(cfg.Timers.Labels); n > 0 && n != len(cfg.Timers.Seconds) {
		return FileConfig{}, fmt.Errorf("timers.labels has %d entries, timers.seconds has %d", n, len(cfg.Timers.Seconds))
	}
	return cfg, nil
}
