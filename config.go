package mcp

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the server's assembled configuration: CLI flags layered over an optional TOML
// file. Flag values always win; the file only fills in what a flag left at its zero value.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransportConfig selects and configures the wire transport.
type TransportConfig struct {
	Kind string `toml:"kind"` // "stdio" or "http"
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
	File  string `toml:"file"`  // empty means stderr
}

// LoadConfigFile reads and parses a TOML config file at path. An empty path is not an
// error; it simply yields a zero-value Config for the caller to layer flags onto. A path
// naming a file that cannot be read is an error.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("mcp: reading config file: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("mcp: parsing config file: %w", err)
	}
	return cfg, nil
}

// Merge layers override on top of c: any non-zero field in override wins. Used to apply CLI
// flag values over whatever a config file already set.
func (c Config) Merge(override Config) Config {
	merged := c
	if override.Transport.Kind != "" {
		merged.Transport.Kind = override.Transport.Kind
	}
	if override.Transport.Host != "" {
		merged.Transport.Host = override.Transport.Host
	}
	if override.Transport.Port != 0 {
		merged.Transport.Port = override.Transport.Port
	}
	if override.Logging.Level != "" {
		merged.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		merged.Logging.File = override.Logging.File
	}
	return merged
}

// withDefaults fills in any field Config left unset after merging file and flags.
func (c Config) withDefaults() Config {
	if c.Transport.Kind == "" {
		c.Transport.Kind = "stdio"
	}
	if c.Transport.Host == "" {
		c.Transport.Host = "0.0.0.0"
	}
	if c.Transport.Port == 0 {
		c.Transport.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}
