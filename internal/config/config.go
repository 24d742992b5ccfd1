// Package config loads runtime settings for Curio from defaults, an
// optional JSON file, and command-line flags, in that order of precedence.
package config

import "time"

// Config holds runtime settings for the Curio core.
type Config struct {
	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string

	// SyncEnabled gates the sync coordinator entirely. Off means the system
	// runs as a purely local store with no network dependency.
	SyncEnabled bool

	// MirrorEndpoint is the base URL of the cloud mirror's document API.
	MirrorEndpoint string

	// FlushInterval and PollInterval drive the coordinator's push sweep and
	// change-feed polling.
	FlushInterval time.Duration
	PollInterval  time.Duration

	// BackoffMin seeds shadow-write retry backoff.
	BackoffMin time.Duration

	// Object storage for image uploads (S3 or MinIO).
	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "curio.db"
	c.SyncEnabled = true
	c.MirrorEndpoint = "http://127.0.0.1:8945"
	c.FlushInterval = 15 * time.Second
	c.PollInterval = 20 * time.Second
	c.BackoffMin = 500 * time.Millisecond
	c.S3Region = "us-east-1"
	c.S3Bucket = "curio-images"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
