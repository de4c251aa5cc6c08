package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GroupConfig describes one aggregated group when the static registry is
// used (deployments without a Groups table).
type GroupConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	FeedURL     string `yaml:"feed_url" json:"feed_url"`
	FallbackURL string `yaml:"fallback_url,omitempty" json:"fallback_url,omitempty"`
	URLOverride string `yaml:"url_override,omitempty" json:"url_override,omitempty"`
	Website     string `yaml:"website,omitempty" json:"website,omitempty"`
	Active      bool   `yaml:"active" json:"active"`
}

// CacheConfig selects the feed-cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "disk", "redis".
	Backend string `yaml:"backend" json:"backend"`
	// Dir is the cache directory for the disk backend.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
	// RedisAddr is the host:port for the redis backend.
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
}

// DynamoConfig holds event-store settings.
type DynamoConfig struct {
	Region string `yaml:"region" json:"region"`
	// Endpoint overrides the AWS endpoint (dynamodb-local in dev/tests).
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// EventsTable is the table holding event records.
	EventsTable string `yaml:"events_table" json:"events_table"`
	// GroupsTable, when set, switches the registry from the static group
	// list to a table scan.
	GroupsTable string `yaml:"groups_table,omitempty" json:"groups_table,omitempty"`
	// GroupIndex is the GSI on the events table keyed by GroupID.
	GroupIndex string `yaml:"group_index" json:"group_index"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone events are localized into (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "0 * * * *")
	// used for periodic synchronization runs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// WindowDays is how far ahead recurring events are expanded.
	WindowDays int `yaml:"window_days" json:"window_days"`

	// Concurrency caps how many groups are processed in parallel.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// FetchTimeoutSecs bounds a single feed request, in seconds.
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" json:"fetch_timeout_secs"`

	// FetchRetries is how many times a failed group pipeline is retried
	// within one run before being counted as errored.
	FetchRetries int `yaml:"fetch_retries" json:"fetch_retries"`

	Cache  CacheConfig  `yaml:"cache" json:"cache"`
	Dynamo DynamoConfig `yaml:"dynamo" json:"dynamo"`

	// Groups is the static group list used when dynamo.groups_table is unset.
	Groups []GroupConfig `yaml:"groups" json:"groups"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:         "UTC",
		RefreshCron:      "0 * * * *",
		WindowDays:       90,
		Concurrency:      4,
		FetchTimeoutSecs: 30,
		FetchRetries:     2,
		Cache:            CacheConfig{Backend: "memory"},
		Dynamo: DynamoConfig{
			Region:      "us-east-1",
			EventsTable: "Events",
			GroupIndex:  "group-index",
		},
		Groups: []GroupConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 * * * *"
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 90
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.FetchTimeoutSecs <= 0 {
		c.FetchTimeoutSecs = 30
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	switch c.Cache.Backend {
	case "memory", "disk", "redis":
	default:
		c.Cache.Backend = "memory"
	}
	if c.Cache.Backend == "disk" && c.Cache.Dir == "" {
		c.Cache.Dir = "./var/feed-cache"
	}
	if c.Dynamo.Region == "" {
		c.Dynamo.Region = "us-east-1"
	}
	if c.Dynamo.EventsTable == "" {
		c.Dynamo.EventsTable = "Events"
	}
	if c.Dynamo.GroupIndex == "" {
		c.Dynamo.GroupIndex = "group-index"
	}
	if c.Groups == nil {
		c.Groups = []GroupConfig{}
	}
}

// Validate reports configuration that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required for the redis backend")
	}
	return nil
}

// FetchTimeout returns the feed request bound as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Load loads configuration from the given YAML path. A missing file is
// not an error; defaults are returned so that flag-only runs work.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
