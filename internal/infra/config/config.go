// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Playback PlaybackConfig `yaml:"playback"`
	Reaper   ReaperConfig   `yaml:"reaper"`
	Search   SearchConfig   `yaml:"search"`
	Resolver ResolverConfig `yaml:"resolver"`
}

// DiscordConfig represents gateway credentials and command registration.
type DiscordConfig struct {
	Token string `yaml:"token" validate:"required"`
	// GuildID scopes slash command registration to one guild for instant
	// availability. Empty registers commands globally.
	GuildID string `yaml:"guild_id"`
}

// PlaybackConfig represents queue behavior configuration.
type PlaybackConfig struct {
	DefaultVolume      int `yaml:"default_volume" default:"50" validate:"gte=0,lte=100"`
	MaxSongDurationSec int `yaml:"max_song_duration_sec" default:"3600" validate:"gte=0"`
	MaxPlaylistSize    int `yaml:"max_playlist_size" default:"50" validate:"gte=1"`
	AdvanceDelayMs     int `yaml:"advance_delay_ms" default:"1000" validate:"gte=0,lte=30000"`
}

// ReaperConfig represents idle disconnect configuration.
type ReaperConfig struct {
	GracePeriodSec int `yaml:"grace_period_sec" default:"30" validate:"gte=1"`
}

// SearchConfig represents interactive search session configuration.
type SearchConfig struct {
	SessionTTLSec int `yaml:"session_ttl_sec" default:"300" validate:"gte=1"`
}

// ResolverConfig represents the resolution strategy chain.
type ResolverConfig struct {
	Strategies []StrategyConfig `yaml:"strategies" validate:"required,min=1"`
}

// StrategyConfig represents a single resolution strategy configuration.
type StrategyConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if c.Discord.GuildID != "" {
		if _, err := snowflake.Parse(c.Discord.GuildID); err != nil {
			return errors.Wrapf(err, "guild_id %q is not a snowflake", c.Discord.GuildID)
		}
	}
	return nil
}

// CommandGuildID returns the configured guild scope, or zero for global
// registration.
func (c *Config) CommandGuildID() snowflake.ID {
	if c.Discord.GuildID == "" {
		return 0
	}
	id, _ := snowflake.Parse(c.Discord.GuildID)
	return id
}

// MaxSongDuration returns the per-track duration cap, zero meaning
// unlimited.
func (c *Config) MaxSongDuration() time.Duration {
	return time.Duration(c.Playback.MaxSongDurationSec) * time.Second
}

// AdvanceDelay returns the gap between tracks.
func (c *Config) AdvanceDelay() time.Duration {
	return time.Duration(c.Playback.AdvanceDelayMs) * time.Millisecond
}

// GracePeriod returns the idle disconnect grace period.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Reaper.GracePeriodSec) * time.Second
}

// SessionTTL returns the search session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Search.SessionTTLSec) * time.Second
}
