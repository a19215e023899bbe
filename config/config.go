// Package config loads server settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envVarPrefix = "GAMESERVER"

// Config holds every setting the server reads at startup.
type Config struct {
	// Host the stream and datagram listeners bind to; empty means all interfaces.
	Host string `mapstructure:"host"`
	// Port shared by the TCP listener and the UDP socket.
	Port int `mapstructure:"port"`
	// Number of session slots; ids run from 1 to MaxPlayers.
	MaxPlayers int `mapstructure:"max_players"`
	// Period of the logical thread tick.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// Text carried by the Welcome packet.
	WelcomeMessage string `mapstructure:"welcome_message"`
	// Socket send/receive buffer and read scratch buffer size in bytes.
	BufferSize int `mapstructure:"buffer_size"`
	// Largest frame body accepted on either transport.
	MaxFrameSize int `mapstructure:"max_frame_size"`
	// Stream packets queued per session before sends are dropped.
	OutboxSize int `mapstructure:"outbox_size"`
	// Sessions silent for this long are disconnected; 0 disables the check.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	Log struct {
		// Minimum level: debug, info, warn, error.
		Level string `mapstructure:"level"`
		// Directory for daily rotated log files; blank logs to stdout only.
		Dir string `mapstructure:"dir"`
		// Service name stamped on every entry.
		Service string `mapstructure:"service"`
		// Human-readable console output instead of JSON.
		Console bool `mapstructure:"console"`
	} `mapstructure:"log"`

	Admin struct {
		// Listen address of the admin HTTP server; blank disables it.
		Addr string `mapstructure:"addr"`
	} `mapstructure:"admin"`

	Redis struct {
		// Address of the Redis instance receiving the player roster; blank disables it.
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		// Hash key holding id -> username for connected players.
		Key string `mapstructure:"key"`
	} `mapstructure:"redis"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 26950)
	v.SetDefault("max_players", 10)
	v.SetDefault("tick_interval", 20*time.Millisecond)
	v.SetDefault("welcome_message", "Welcome to the server!")
	v.SetDefault("buffer_size", 4096)
	v.SetDefault("max_frame_size", 64*1024)
	v.SetDefault("outbox_size", 256)
	v.SetDefault("idle_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.service", "gameserver")
	v.SetDefault("log.console", false)
	v.SetDefault("admin.addr", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "gameserver:players")
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		panic(fmt.Errorf("default config is invalid: %w", err))
	}

	return cfg
}

// Load reads config.yaml from configPath (when non-empty) into v, applies
// GAMESERVER_* environment overrides and validates the result. A missing
// config file is not an error; defaults and the environment still apply.
//
// Parameters:
//   - v: The viper instance to populate; callers may have bound flags to it
//   - configPath: Directory searched for config.yaml
//
// Returns:
//   - The validated Config
//   - An error if the file cannot be parsed or a value is invalid
func Load(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	if configPath != "" {
		v.AddConfigPath(configPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envVarPrefix)
	v.AutomaticEnv()

	// Nested keys such as log.level are set through GAMESERVER_LOG_LEVEL.
	for _, k := range v.AllKeys() {
		envVar := envVarPrefix + "_" + strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := v.BindEnv(k, envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVar, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.MaxPlayers < 1:
		return fmt.Errorf("max_players must be at least 1, got %d", c.MaxPlayers)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	case c.BufferSize <= 0:
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	case c.MaxFrameSize <= 4:
		return fmt.Errorf("max_frame_size must exceed 4 bytes, got %d", c.MaxFrameSize)
	case c.OutboxSize <= 0:
		return fmt.Errorf("outbox_size must be positive, got %d", c.OutboxSize)
	case c.IdleTimeout < 0:
		return fmt.Errorf("idle_timeout must not be negative, got %s", c.IdleTimeout)
	}

	return nil
}

// Addr returns the host:port both listeners bind to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
