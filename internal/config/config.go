// Package config loads the server configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	// Listen is the UDP address players talk to.
	Listen ListenConfig `yaml:"listen"`

	// MPD locates the music player daemon used as the playback source.
	MPD MPDConfig `yaml:"mpd"`

	// PrefsPath is where server preferences (known players, volumes)
	// are persisted.
	PrefsPath string `yaml:"prefs_path,omitempty"`

	// HistoryPath is where the playback history database lives.
	HistoryPath string `yaml:"history_path,omitempty"`

	// LogLevel sets the minimum log level (trace, debug, info, warn,
	// error).
	LogLevel string `yaml:"log_level,omitempty"`
}

// ListenConfig represents the UDP listener settings.
type ListenConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// MPDConfig represents the MPD connection settings. StreamURL points
// at MPD's httpd output, which carries the encoded audio the players
// are fed.
type MPDConfig struct {
	Address   string `yaml:"address,omitempty"`
	Password  string `yaml:"password,omitempty"`
	StreamURL string `yaml:"stream_url,omitempty"`
}

// Addr returns the listen address in host:port form.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// DefaultConfig returns the default configuration. Port 3483 is the
// control port the players are hardwired to announce on.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Host: "0.0.0.0",
			Port: 3483,
		},
		MPD: MPDConfig{
			Address:   "localhost:6600",
			StreamURL: "http://localhost:8000/mpd.mp3",
		},
		PrefsPath:   "/var/lib/slimserver/prefs.yaml",
		HistoryPath: "/var/lib/slimserver/history.db",
		LogLevel:    "info",
	}
}

// LoadConfig loads configuration from file. A missing file yields the
// defaults; fields absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Listen.Port <= 0 || cfg.Listen.Port > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", cfg.Listen.Port)
	}

	return cfg, nil
}
