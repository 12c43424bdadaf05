// Package config loads server configuration from an optional YAML file with
// environment variable overrides (AGENTRELAY_ prefix).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the agent-relay server.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Projects  ProjectsConfig  `mapstructure:"projects"`
	Store     StoreConfig     `mapstructure:"store"`
	Status    StatusConfig    `mapstructure:"status"`
	Retention RetentionConfig `mapstructure:"retention"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"` // debug / release
	Machine string `mapstructure:"machine"`
}

// ProjectsConfig controls project discovery and admission.
type ProjectsConfig struct {
	// BasePath is the directory whose subdirectories are offered as projects.
	BasePath string `mapstructure:"base_path"`
	// Whitelist restricts which projects may open terminals. Empty means
	// every project is allowed.
	Whitelist []string `mapstructure:"whitelist"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// StatusConfig holds the timing knobs for the status classifier.
type StatusConfig struct {
	// HeartbeatTimeout is how stale a heartbeat may be before a working
	// session is considered idle.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// MonitorInterval is the heartbeat monitor sweep interval.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	// HookFreshness is how long a hook-sourced status outranks heuristics.
	HookFreshness time.Duration `mapstructure:"hook_freshness"`
}

// RetentionConfig holds the cleanup windows for the retention sweep.
type RetentionConfig struct {
	SessionMaxAge   time.Duration `mapstructure:"session_max_age"`
	ArchivedMaxAge  time.Duration `mapstructure:"archived_max_age"`
	HistoryMaxAge   time.Duration `mapstructure:"history_max_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// GatewayConfig holds WebSocket terminal protocol settings.
type GatewayConfig struct {
	// LaunchDebounce is the window within which repeated agent-launch
	// control messages on one connection are dropped.
	LaunchDebounce time.Duration `mapstructure:"launch_debounce"`
	// TrustModeDelay is how long to wait before writing the launch command
	// when trust mode is requested, so the agent prompt is ready first.
	TrustModeDelay time.Duration `mapstructure:"trust_mode_delay"`
	// HistoryLines bounds scrollback capture when the client does not ask
	// for a specific amount.
	HistoryLines int `mapstructure:"history_lines"`
}

// Load reads configuration from configPath (a directory containing
// config.yaml) if present, applies AGENTRELAY_* environment overrides, and
// fills in defaults for everything else. A missing config file is not an
// error; environment-only deployments are supported.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("AGENTRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4678)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.machine", "")

	v.SetDefault("projects.base_path", "~/projects")
	v.SetDefault("projects.whitelist", []string{})

	v.SetDefault("store.path", "~/.agent-relay/agent-relay.db")

	v.SetDefault("status.heartbeat_timeout", 3*time.Second)
	v.SetDefault("status.monitor_interval", time.Second)
	v.SetDefault("status.hook_freshness", 30*time.Second)

	v.SetDefault("retention.session_max_age", 24*time.Hour)
	v.SetDefault("retention.archived_max_age", 30*24*time.Hour)
	v.SetDefault("retention.history_max_age", 7*24*time.Hour)
	v.SetDefault("retention.cleanup_interval", time.Hour)

	v.SetDefault("gateway.launch_debounce", 300*time.Millisecond)
	v.SetDefault("gateway.trust_mode_delay", 2500*time.Millisecond)
	v.SetDefault("gateway.history_lines", 10000)
}
