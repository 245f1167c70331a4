// Package config loads the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/presenced/internal/daemon"
	"github.com/eliteGoblin/presenced/internal/domain"
	"github.com/eliteGoblin/presenced/internal/usecase"
)

// Transport modes.
const (
	TransportWebsocket = "websocket"
	TransportLog       = "log"
)

// Presence defaults for the bundled application.
const (
	DefaultClientID       = "1071527161049124914"
	DefaultLargeImageKey  = "icon"
	DefaultLargeImageText = "A multiplayer survival game of parenting and civilization building, Join us on discord to play!"
)

// Config is the daemon's configuration file.
type Config struct {
	Presence  PresenceConfig  `yaml:"presence"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PresenceConfig holds the credential, display preferences and engine tuning.
type PresenceConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ShowStatus          bool          `yaml:"show_status"`
	ShowDetails         bool          `yaml:"show_details"`
	ShowFirstName       bool          `yaml:"show_first_name"`
	ShowAge             bool          `yaml:"show_age"`
	ClientID            string        `yaml:"client_id"`
	LargeImageKey       string        `yaml:"large_image_key"`
	LargeImageText      string        `yaml:"large_image_text"`
	ReconnectCooldown   time.Duration `yaml:"reconnect_cooldown"`
	IdleExpressionIndex int           `yaml:"idle_expression_index"`
}

// DaemonConfig controls the run loop.
type DaemonConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
	StatePath      string        `yaml:"state_path"` // Empty means the default under the data dir
}

// TransportConfig selects and tunes the presence client.
type TransportConfig struct {
	Mode             string        `yaml:"mode"`
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ServiceProcess   string        `yaml:"service_process"` // Empty disables the process probe
	RateLimit        int           `yaml:"rate_limit"`
	RateWindow       time.Duration `yaml:"rate_window"`
}

// LoggingConfig sets the log file and level. An empty path uses the
// exec-mode default.
type LoggingConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Presence: PresenceConfig{
			Enabled:             true,
			ShowFirstName:       true,
			ShowAge:             true,
			ClientID:            DefaultClientID,
			LargeImageKey:       DefaultLargeImageKey,
			LargeImageText:      DefaultLargeImageText,
			ReconnectCooldown:   usecase.DefaultReconnectCooldown,
			IdleExpressionIndex: usecase.DefaultIdleExpressionIndex,
		},
		Daemon: DaemonConfig{
			TickInterval:   daemon.DefaultTickInterval,
			StatusInterval: daemon.DefaultStatusInterval,
		},
		Transport: TransportConfig{
			Mode:             TransportWebsocket,
			URL:              "ws://127.0.0.1:6473/presence",
			HandshakeTimeout: 2 * time.Second,
			ServiceProcess:   "discord",
			RateLimit:        5,
			RateWindow:       20 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Validate rejects values the daemon cannot run with. The client id is not
// checked here; the engine classifies it on connect.
func (c *Config) Validate() error {
	if c.Presence.ReconnectCooldown <= 0 {
		return fmt.Errorf("presence.reconnect_cooldown must be positive, got %s", c.Presence.ReconnectCooldown)
	}
	if c.Daemon.TickInterval <= 0 {
		return fmt.Errorf("daemon.tick_interval must be positive, got %s", c.Daemon.TickInterval)
	}
	switch c.Transport.Mode {
	case TransportWebsocket:
		if c.Transport.URL == "" {
			return errors.New("transport.url is required for websocket mode")
		}
		if c.Transport.RateLimit <= 0 || c.Transport.RateWindow <= 0 {
			return errors.New("transport.rate_limit and transport.rate_window must be positive")
		}
	case TransportLog:
	default:
		return fmt.Errorf("unknown transport.mode %q", c.Transport.Mode)
	}
	return nil
}

// Preferences returns the display preferences the file configures.
func (c *Config) Preferences() domain.DisplayPreferences {
	p := c.Presence
	return domain.DisplayPreferences{
		ShowGame:      p.Enabled,
		ShowStatus:    p.ShowStatus,
		ShowDetails:   p.ShowDetails,
		ShowFirstName: p.ShowFirstName,
		ShowAge:       p.ShowAge,
	}
}

// Engine builds the engine configuration. prefs replaces the file's
// preferences, so stored overrides can be applied by the caller.
func (c *Config) Engine(prefs domain.DisplayPreferences, startedAt time.Time) usecase.EngineConfig {
	return usecase.EngineConfig{
		Connection: usecase.ConnectionConfig{
			ClientID:          c.Presence.ClientID,
			LargeImageKey:     c.Presence.LargeImageKey,
			LargeImageText:    c.Presence.LargeImageText,
			ReconnectCooldown: c.Presence.ReconnectCooldown,
			StartedAt:         startedAt,
		},
		Preferences: prefs,
		IdleIndex:   c.Presence.IdleExpressionIndex,
	}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
