// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source types
const (
	SourceSpotify = "spotify"
	SourceLastFm  = "lastfm"
	SourceCatalog = "catalog"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Auth     AuthConfig              `yaml:"auth"`
	Playback PlaybackConfig          `yaml:"playback"`
	Media    MediaConfig             `yaml:"media"`
	Sources  []SourceConfig          `yaml:"sources" validate:"required,min=1,dive"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
	Catalog  CatalogConfig           `yaml:"catalog"`
	Storage  StorageConfig           `yaml:"storage"`
	Cache    CacheConfig             `yaml:"cache"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr               string      `yaml:"addr" default:":8080"`
	ShutdownTimeoutSec int         `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1"`
	Hooks              HooksConfig `yaml:"hooks"`
}

// HooksConfig represents shell commands run around the server lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AuthConfig represents API authentication configuration.
type AuthConfig struct {
	Tokens     []TokenConfig `yaml:"tokens" validate:"dive"`
	AdminToken string        `yaml:"admin_token"`
	JWTSecret  string        `yaml:"jwt_secret" validate:"omitempty,min=16"`
}

// TokenConfig maps a static token to an identity.
type TokenConfig struct {
	Token  string `yaml:"token" validate:"required"`
	UserID string `yaml:"user_id" validate:"required"`
	Role   string `yaml:"role" default:"viewer" validate:"oneof=admin viewer"`
}

// PlaybackConfig represents playback session configuration.
type PlaybackConfig struct {
	InitialVolume      float64 `yaml:"initial_volume" default:"0.8" validate:"gte=0,lte=1"`
	// PreviousTrack restarts the current track once it has played this long (0 = always move back)
	RestartThresholdMs int     `yaml:"restart_threshold_ms" validate:"gte=0"`
	EventBuffer        int     `yaml:"event_buffer" default:"64" validate:"gte=1"`
	LoadTimeoutSec     int     `yaml:"load_timeout_sec" default:"30" validate:"gte=1"`
}

// MediaConfig represents media element configuration.
type MediaConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms" default:"250" validate:"gte=10,lte=5000"`
}

// SourceConfig represents a single collection source.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=spotify lastfm catalog"`
	DisplayName string         `yaml:"display_name"`
	Cache       bool           `yaml:"cache"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// CatalogConfig represents the MySQL catalog configuration.
type CatalogConfig struct {
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns" default:"10" validate:"gte=1"`
	MaxIdleConns       int    `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" default:"3600" validate:"gte=0"`
	SlowThresholdMs    int    `yaml:"slow_threshold_ms" default:"200" validate:"gte=0"`
}

// StorageConfig represents the MinIO object storage configuration.
type StorageConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket" default:"audio"`
	Region       string `yaml:"region"`
	UseSSL       bool   `yaml:"use_ssl"`
	URLExpirySec int    `yaml:"url_expiry_sec" default:"3600" validate:"gte=60"`
}

// CacheConfig represents the Redis collection cache configuration.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"127.0.0.1:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"19deck:"`
	TTLSec   int    `yaml:"ttl_sec" default:"600" validate:"gte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
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
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Sources {
			if c.Sources[i].Type == SourceLastFm {
				if c.Sources[i].Settings == nil {
					c.Sources[i].Settings = make(map[string]any)
				}
				c.Sources[i].Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("DECK_ADMIN_TOKEN"); v != "" {
		c.Auth.AdminToken = v
	}
	if v := os.Getenv("DECK_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Catalog.DSN = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.HasSource(SourceSpotify) || c.HasSource(SourceLastFm) {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify credentials are required by the spotify and lastfm sources")
		}
	}
	if c.HasSource(SourceCatalog) {
		if c.Catalog.DSN == "" {
			return errors.New("catalog.dsn is required by the catalog source")
		}
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint is required by the catalog source")
		}
	}

	hasAdmin := false
	for _, t := range c.AuthTokens() {
		if t.Role == RoleAdmin {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin && c.Auth.JWTSecret == "" {
		return errors.New("at least one admin token or a jwt secret is required")
	}

	return nil
}

// HasSource reports whether a source of the given type is configured.
func (c *Config) HasSource(sourceType string) bool {
	for _, s := range c.Sources {
		if s.Type == sourceType {
			return true
		}
	}
	return false
}

// AuthTokens returns the static token table, including the admin token.
func (c *Config) AuthTokens() []TokenConfig {
	tokens := make([]TokenConfig, 0, len(c.Auth.Tokens)+1)
	tokens = append(tokens, c.Auth.Tokens...)
	if c.Auth.AdminToken != "" {
		tokens = append(tokens, TokenConfig{Token: c.Auth.AdminToken, UserID: "admin", Role: RoleAdmin})
	}
	return tokens
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// RestartThreshold returns the previous-track restart threshold.
func (p PlaybackConfig) RestartThreshold() time.Duration {
	return time.Duration(p.RestartThresholdMs) * time.Millisecond
}

// LoadTimeout returns the timeout of a single collection load.
func (p PlaybackConfig) LoadTimeout() time.Duration {
	return time.Duration(p.LoadTimeoutSec) * time.Second
}

// TickInterval returns the media clock tick interval.
func (m MediaConfig) TickInterval() time.Duration {
	return time.Duration(m.TickIntervalMs) * time.Millisecond
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}
