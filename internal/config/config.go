// Package config loads and validates the artifactstore configuration from a
// YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy selects the active storage backend.
type Strategy string

const (
	StrategyMemory Strategy = "memory"
	StrategyS3     Strategy = "s3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Strategy StrategyConfig `yaml:"strategy"`
	Segments SegmentsConfig `yaml:"segments"`
	API      APIConfig      `yaml:"api"`
	Audit    AuditConfig    `yaml:"audit"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port      int `yaml:"port"`
	AdminPort int `yaml:"admin_port"`

	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds the JWT verification settings.
type AuthConfig struct {
	// JWTPublicKeyPath points at the PEM-encoded RSA public key used to
	// verify bearer tokens.
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`

	// JWTMaxAge rejects tokens older than this (issued-at based).
	JWTMaxAge time.Duration `yaml:"jwt_max_age"`
}

// StrategyConfig selects and parameterizes the backend.
type StrategyConfig struct {
	Plugin Strategy `yaml:"plugin"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds S3 connection parameters.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	PartSizeMB      int    `yaml:"part_size_mb"`
}

// SegmentConfig holds per-segment limits.
type SegmentConfig struct {
	ExpiresInSec int   `yaml:"expires_in_sec"`
	MaxByteSize  int64 `yaml:"max_byte_size"`
}

// SegmentsConfig holds limits for each logical namespace.
type SegmentsConfig struct {
	Builds   SegmentConfig `yaml:"builds"`
	Caches   SegmentConfig `yaml:"caches"`
	Commands SegmentConfig `yaml:"commands"`
}

// APIConfig points at the external authorization API consulted for command
// publishing and bulk cache invalidation.
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// AuditConfig configures the SQLite audit trail. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig configures the optional NATS event publisher.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

const (
	defaultPort      = 8080
	defaultAdminPort = 8081

	// defaultTTLSec matches the original store defaults: one day TTL,
	// 1 GiB max payload.
	defaultTTLSec      = 24 * 60 * 60
	defaultMaxBytes    = int64(1024 * 1024 * 1024)
	defaultPartSizeMB  = 16
	defaultAPITimeout  = 10
	defaultJWTMaxAge   = 12 * time.Hour
	defaultShutdownSec = 15
	defaultSubject     = "store.events"
)

// Load reads, overrides, defaults, and validates a configuration file.
// A missing file yields pure defaults (memory strategy).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARTIFACTSTORE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("ARTIFACTSTORE_ADMIN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.AdminPort = n
		}
	}
	if v := os.Getenv("ARTIFACTSTORE_STRATEGY"); v != "" {
		c.Strategy.Plugin = Strategy(v)
	}
	if v := os.Getenv("ARTIFACTSTORE_JWT_PUBLIC_KEY_PATH"); v != "" {
		c.Auth.JWTPublicKeyPath = v
	}
	if v := os.Getenv("ARTIFACTSTORE_S3_ENDPOINT"); v != "" {
		c.Strategy.S3.Endpoint = v
	}
	if v := os.Getenv("ARTIFACTSTORE_S3_REGION"); v != "" {
		c.Strategy.S3.Region = v
	}
	if v := os.Getenv("ARTIFACTSTORE_S3_ACCESS_KEY_ID"); v != "" {
		c.Strategy.S3.AccessKeyID = v
	}
	if v := os.Getenv("ARTIFACTSTORE_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Strategy.S3.SecretAccessKey = v
	}
	if v := os.Getenv("ARTIFACTSTORE_S3_BUCKET"); v != "" {
		c.Strategy.S3.Bucket = v
	}
	if v := os.Getenv("ARTIFACTSTORE_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ARTIFACTSTORE_NATS_URL"); v != "" {
		c.Events.URL = v
		c.Events.Enabled = true
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = defaultAdminPort
	}
	if c.Server.ShutdownTimeoutSec == 0 {
		c.Server.ShutdownTimeoutSec = defaultShutdownSec
	}
	if c.Strategy.Plugin == "" {
		c.Strategy.Plugin = StrategyMemory
	}
	if c.Strategy.S3.PartSizeMB == 0 {
		c.Strategy.S3.PartSizeMB = defaultPartSizeMB
	}
	if c.Auth.JWTMaxAge == 0 {
		c.Auth.JWTMaxAge = defaultJWTMaxAge
	}
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = defaultAPITimeout
	}
	if c.Events.Subject == "" {
		c.Events.Subject = defaultSubject
	}
	for _, seg := range []*SegmentConfig{&c.Segments.Builds, &c.Segments.Caches, &c.Segments.Commands} {
		if seg.ExpiresInSec == 0 {
			seg.ExpiresInSec = defaultTTLSec
		}
		if seg.MaxByteSize == 0 {
			seg.MaxByteSize = defaultMaxBytes
		}
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Strategy.Plugin {
	case StrategyMemory:
	case StrategyS3:
		if c.Strategy.S3.Bucket == "" {
			return fmt.Errorf("strategy s3 requires a bucket")
		}
		if c.Strategy.S3.Region == "" && c.Strategy.S3.Endpoint == "" {
			return fmt.Errorf("strategy s3 requires a region or endpoint")
		}
	default:
		return fmt.Errorf("unknown storage strategy %q", c.Strategy.Plugin)
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("server port and admin port must differ")
	}
	for name, seg := range map[string]SegmentConfig{
		"builds": c.Segments.Builds, "caches": c.Segments.Caches, "commands": c.Segments.Commands,
	} {
		if seg.MaxByteSize < 0 {
			return fmt.Errorf("segment %s: negative max_byte_size", name)
		}
		if seg.ExpiresInSec < 0 {
			return fmt.Errorf("segment %s: negative expires_in_sec", name)
		}
	}
	return nil
}

// PartSizeBytes returns the multipart part size in bytes.
func (s S3Config) PartSizeBytes() int64 {
	return int64(s.PartSizeMB) * 1024 * 1024
}

// APITimeout returns the external API client timeout.
func (a APIConfig) APITimeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}
