// Package config loads the host's runtime configuration via viper, mirroring
// the teacher agent's mapstructure-tagged config struct and layered
// file/env-var loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/aircatch/host/internal/logging"
)

var log = logging.L("config")

// Config holds every tunable the streaming-session engine reads at startup.
// Negotiated, per-session values (bitrate, fps, codec) live in
// internal/session.NegotiatedProfile instead — this struct is the floor/ceiling policy,
// not session state.
type Config struct {
	HostName string `mapstructure:"host_name"`

	LocalUDPPort int `mapstructure:"local_udp_port"` // 0 = ephemeral
	LocalTCPPort int `mapstructure:"local_tcp_port"` // 0 = ephemeral

	RelayURL     string `mapstructure:"relay_url"`
	RelayEnabled bool   `mapstructure:"relay_enabled"`

	CloseRangeEnabled bool `mapstructure:"close_range_enabled"`

	ChunkSizeBytes  int `mapstructure:"chunk_size_bytes"`
	ChunkCacheTTLMs int `mapstructure:"chunk_cache_ttl_ms"`
	PruneInterval   int `mapstructure:"prune_interval"` // frame_id modulus

	RelayBackpressureLimitBytes int `mapstructure:"relay_backpressure_limit_bytes"`
	RelayMessageCeilingBytes    int `mapstructure:"relay_message_ceiling_bytes"`

	AdaptiveThroughputPeriodMs int    `mapstructure:"adaptive_throughput_period_ms"`
	StunServerHost             string `mapstructure:"stun_server_host"`
	StunServerPort             int    `mapstructure:"stun_server_port"`
	StunTimeoutMs              int    `mapstructure:"stun_timeout_ms"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// PIDFile records the running `run` process's pid so `pin rotate` (a
	// separate invocation of this binary) can find it and signal a rotation.
	PIDFile string `mapstructure:"pid_file"`
}

// Default returns the spec-mandated defaults (§4.3, §4.4, §4.7, §4.9).
func Default() *Config {
	return &Config{
		HostName: defaultHostName(),

		LocalUDPPort: 0,
		LocalTCPPort: 0,

		RelayURL:     "wss://relay.aircatch.example/ws",
		RelayEnabled: true,

		CloseRangeEnabled: true,

		ChunkSizeBytes:  1200,
		ChunkCacheTTLMs: 1000,
		PruneInterval:   60,

		RelayBackpressureLimitBytes: 1_000_000,
		RelayMessageCeilingBytes:    500_000,

		AdaptiveThroughputPeriodMs: 2000,
		StunServerHost:             "stun.l.google.com",
		StunServerPort:             19302,
		StunTimeoutMs:              2000,

		LogLevel:  "info",
		LogFormat: "text",

		PIDFile: filepath.Join(os.TempDir(), "aircatch-host.pid"),
	}
}

// Load reads configuration from cfgFile (or the platform default config
// path/name when empty), overlaying environment variables prefixed
// AIRCATCH_, and falling back to Default() for anything unset.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("aircatch-host")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AIRCATCH")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("config validation failed", "error", err)
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the invariants the rest of the engine assumes hold.
func (c *Config) Validate() error {
	if c.ChunkSizeBytes <= 0 {
		return fmt.Errorf("config: chunk_size_bytes must be positive")
	}
	if c.ChunkCacheTTLMs <= 0 {
		return fmt.Errorf("config: chunk_cache_ttl_ms must be positive")
	}
	if c.PruneInterval <= 0 {
		return fmt.Errorf("config: prune_interval must be positive")
	}
	if c.RelayEnabled && c.RelayURL == "" {
		return fmt.Errorf("config: relay_url required when relay_enabled")
	}
	return nil
}

func defaultHostName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "aircatch-host"
	}
	return name
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "AirCatch")
	case "darwin":
		return "/Library/Application Support/AirCatch"
	default:
		return "/etc/aircatch"
	}
}
