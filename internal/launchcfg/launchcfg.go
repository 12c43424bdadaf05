// Package launchcfg loads the optional launch-config.toml describing how the
// agent binary is invoked.
package launchcfg

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config describes the agent launch command.
type Config struct {
	// Command is the agent binary, default "claude".
	Command string `toml:"command"`
	// ExtraArgs are appended to every launch.
	ExtraArgs []string `toml:"extra_args"`
	// TrustFlag is the flag appended in trust mode.
	TrustFlag string `toml:"trust_flag"`
}

// Default returns the built-in launch configuration.
func Default() *Config {
	return &Config{
		Command:   "claude",
		TrustFlag: "--dangerously-skip-permissions",
	}
}

// Load reads launch-config.toml from dir, falling back to defaults when the
// file is absent. A malformed file is an error; a missing one is not.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "launch-config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.TrustFlag == "" {
		cfg.TrustFlag = "--dangerously-skip-permissions"
	}
	return cfg, nil
}
