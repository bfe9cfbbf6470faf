package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/robfig/cron/v3"
)

const (
	DefaultCacheSize      = 256
	DefaultComposeWorkers = 4
	DefaultCommitRetries  = 3
	DefaultMaxImagePixels = 40_000_000
	DefaultCleanupCron    = "*/15 * * * *"
	DefaultCleanupBatch   = 100
)

type Config struct {
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Blob      BlobConfig      `yaml:"blob"`
	Audit     AuditConfig     `yaml:"audit"`
	Templates TemplatesConfig `yaml:"templates"`
	Issuance  IssuanceConfig  `yaml:"issuance"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AuthConfig struct {
	// AllowOnBehalf lets admins generate and read artifacts of any student.
	// Defaults to true.
	AllowOnBehalf *bool          `yaml:"allow_on_behalf"`
	Issuers       []IssuerConfig `yaml:"issuers"`
}

func (a AuthConfig) OnBehalfAllowed() bool {
	return a.AllowOnBehalf == nil || *a.AllowOnBehalf
}

// IssuerConfig holds configuration for an Auth Provider.
type IssuerConfig struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`    // e.g., "jwt", "oidc", "static"
	Config map[string]any `yaml:",inline"` // Capture remaining fields
}

// DatabaseConfig selects the store for templates, artifact pointers and student records.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory", "sqlite", "postgres"
	DSN    string `yaml:"dsn"`
}

// BlobConfig selects the blob store for backgrounds, photos and renders.
type BlobConfig struct {
	Type   string         `yaml:"type"`    // e.g., "fs", "s3", "memory"
	Config map[string]any `yaml:",inline"` // Capture remaining fields
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

type TemplatesConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type IssuanceConfig struct {
	// ComposeWorkers bounds concurrent renders.
	ComposeWorkers int `yaml:"compose_workers"`

	// CommitRetries is how often a lost pointer update is retried before
	// the request fails with a conflict.
	CommitRetries int `yaml:"commit_retries"`

	// MaxImagePixels bounds width*height of uploaded photos and backgrounds.
	MaxImagePixels int `yaml:"max_image_pixels"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits artifact requests per caller. A zero PerSecond disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type CleanupConfig struct {
	// Schedule is a cron expression for the blob-gc task. Empty disables scheduling.
	Schedule  string `yaml:"schedule"`
	BatchSize int    `yaml:"batch_size"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Blob.Type == "" {
		c.Blob.Type = "memory"
	}
	if c.Audit.Enabled && c.Audit.Type == "" {
		c.Audit.Type = "memory"
	}
	if c.Templates.CacheSize == 0 {
		c.Templates.CacheSize = DefaultCacheSize
	}
	if c.Issuance.ComposeWorkers == 0 {
		c.Issuance.ComposeWorkers = DefaultComposeWorkers
	}
	if c.Issuance.CommitRetries == 0 {
		c.Issuance.CommitRetries = DefaultCommitRetries
	}
	if c.Issuance.MaxImagePixels == 0 {
		c.Issuance.MaxImagePixels = DefaultMaxImagePixels
	}
	if c.Issuance.RateLimit.PerSecond > 0 && c.Issuance.RateLimit.Burst == 0 {
		c.Issuance.RateLimit.Burst = 1
	}
	if c.Cleanup.BatchSize == 0 {
		c.Cleanup.BatchSize = DefaultCleanupBatch
	}
}

func (c *Config) Validate() error {
	if len(c.Auth.Issuers) == 0 {
		return fmt.Errorf("at least one issuer must be configured")
	}
	seen := make(map[string]struct{})
	for idx, i := range c.Auth.Issuers {
		if i.Name == "" {
			return fmt.Errorf("issuer at index %d has empty name", idx)
		}
		if _, dup := seen[i.Name]; dup {
			return fmt.Errorf("issuer name '%s' is not unique", i.Name)
		}
		seen[i.Name] = struct{}{}
		switch i.Type {
		case "jwt", "oidc", "static":
		default:
			return fmt.Errorf("unknown issuer type '%s' for issuer '%s'", i.Type, i.Name)
		}
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver '%s'", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database driver '%s'", c.Database.Driver)
	}

	switch c.Blob.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unknown blob store type '%s'", c.Blob.Type)
	}

	if c.Audit.Enabled {
		switch c.Audit.Type {
		case "memory":
		case "file":
			if c.Audit.Path == "" {
				return fmt.Errorf("audit.path is required for file auditing")
			}
		default:
			return fmt.Errorf("unknown audit type '%s'", c.Audit.Type)
		}
	}

	if c.Templates.CacheSize < 0 {
		return fmt.Errorf("templates.cache_size must not be negative")
	}
	if c.Issuance.ComposeWorkers < 0 {
		return fmt.Errorf("issuance.compose_workers must not be negative")
	}
	if c.Issuance.CommitRetries < 0 {
		return fmt.Errorf("issuance.commit_retries must not be negative")
	}
	if c.Issuance.MaxImagePixels < 0 {
		return fmt.Errorf("issuance.max_image_pixels must not be negative")
	}
	if c.Issuance.RateLimit.PerSecond < 0 || c.Issuance.RateLimit.Burst < 0 {
		return fmt.Errorf("issuance.rate_limit values must not be negative")
	}

	if c.Cleanup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
			return fmt.Errorf("invalid cleanup.schedule: %w", err)
		}
	}
	return nil
}
