// Package config loads mavrelay's TOML configuration file into the
// values pkg/router and pkg/bridge/wsview need to start, following the
// same load/normalize/validate shape as a typical TOML-driven service
// config: defaults first, then overridden by whatever the file sets.
package config

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"mavrelay/pkg/dialect"
	"mavrelay/pkg/transport"
)

// DefaultConfigPath is used by cmd/mavrelayd when no config path argument
// is given.
const DefaultConfigPath = "mavrelay.toml"

// ErrUnknownDialect means Router.Dialect names a dialect ResolveDialect
// does not know how to construct.
var ErrUnknownDialect = errors.New("config: unknown dialect")

type Config struct {
	Router  RouterConfig  `toml:"router"`
	Logging LoggingConfig `toml:"logging"`
	Bridge  BridgeConfig  `toml:"bridge"`

	path string `toml:"-"`
}

type RouterConfig struct {
	System             uint8             `toml:"system"`
	Component          uint8             `toml:"component"`
	Dialect            string            `toml:"dialect"`
	EchoLocalBroadcast bool              `toml:"echo_local_broadcast"`
	Transports         []TransportConfig `toml:"transports"`
}

type TransportConfig struct {
	Spec string `toml:"spec"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type BridgeConfig struct {
	WSView WSViewConfig `toml:"wsview"`
}

type WSViewConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Default returns the configuration mavrelay starts with when no file
// (or an incomplete one) is present.
func Default() Config {
	return Config{
		Router: RouterConfig{
			System:             255,
			Component:          190,
			Dialect:            "common",
			EchoLocalBroadcast: true,
			Transports: []TransportConfig{
				{Spec: "udpin:127.0.0.1:14550"},
			},
		},
		Logging: LoggingConfig{Level: "info"},
		Bridge: BridgeConfig{
			WSView: WSViewConfig{Enabled: false, Addr: "127.0.0.1:8765"},
		},
	}
}

// Load reads and validates the config file at path. A missing file is
// an error here; use LoadOrDefault when that should fall back silently.
func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() with exists=false
// instead of an error when path does not exist.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("parse config: %w", err)
	}
	cfg.path = path
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

// Path returns the file this Config was loaded from, or "" for a default
// in-memory Config.
func (cfg *Config) Path() string { return cfg.path }

// Validate checks every field that pkg/router or pkg/bridge/wsview would
// otherwise fail on lazily, surfacing the error at load time instead.
func (cfg *Config) Validate() error {
	if _, err := ResolveDialect(cfg.Router.Dialect); err != nil {
		return err
	}
	for _, tr := range cfg.Router.Transports {
		if _, err := transport.ParseSpec(tr.Spec); err != nil {
			return fmt.Errorf("router.transports: %w", err)
		}
	}
	if cfg.Bridge.WSView.Enabled && cfg.Bridge.WSView.Addr == "" {
		return fmt.Errorf("bridge.wsview.addr must be set when enabled")
	}
	return nil
}

func (cfg *Config) normalize() {
	def := Default()
	if cfg.Router.Dialect == "" {
		cfg.Router.Dialect = def.Router.Dialect
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Bridge.WSView.Addr == "" {
		cfg.Bridge.WSView.Addr = def.Bridge.WSView.Addr
	}
}

// TransportSpecs returns the configured transport strings in order, the
// form pkg/router.Config.Transports expects.
func (cfg *Config) TransportSpecs() []string {
	specs := make([]string, len(cfg.Router.Transports))
	for i, tr := range cfg.Router.Transports {
		specs[i] = tr.Spec
	}
	return specs
}

// ResolveDialect maps a config's dialect name to a concrete
// dialect.Dialect. "common" is the only name mavrelay ships today.
func ResolveDialect(name string) (dialect.Dialect, error) {
	switch name {
	case "", "common":
		return dialect.NewCommon(), nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownDialect)
	}
}
