package config

import (
	"encoding/json"
	"os"

	"github.com/dkomarov/curio/internal/flagx"
	"github.com/dkomarov/curio/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "15s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	DatabasePath   *string         `json:"database_path"`
	SyncEnabled    *bool           `json:"sync_enabled"`
	MirrorEndpoint *string         `json:"mirror_endpoint"`
	FlushInterval  *timex.Duration `json:"flush_interval"`
	PollInterval   *timex.Duration `json:"poll_interval"`
	BackoffMin     *timex.Duration `json:"backoff_min"`
	S3Region       *string         `json:"s3_region"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Endpoint     *string         `json:"s3_endpoint"`
	S3AccessKey    *string         `json:"s3_access_key"`
	S3SecretKey    *string         `json:"s3_secret_key"`
}

// parseJson overlays Config with values loaded from a JSON file named by the
// -c/-config flags. Absent file means no overlay; read or unmarshal errors
// panic (callers treat a broken config file as fatal misconfiguration).
// Only fields present in the JSON override defaults.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.SyncEnabled != nil {
		cfg.SyncEnabled = *jc.SyncEnabled
	}
	if jc.MirrorEndpoint != nil {
		cfg.MirrorEndpoint = *jc.MirrorEndpoint
	}
	if jc.FlushInterval != nil {
		cfg.FlushInterval = jc.FlushInterval.Duration
	}
	if jc.PollInterval != nil {
		cfg.PollInterval = jc.PollInterval.Duration
	}
	if jc.BackoffMin != nil {
		cfg.BackoffMin = jc.BackoffMin.Duration
	}
	if jc.S3Region != nil {
		cfg.S3Region = *jc.S3Region
	}
	if jc.S3Bucket != nil {
		cfg.S3Bucket = *jc.S3Bucket
	}
	if jc.S3Endpoint != nil {
		cfg.S3Endpoint = *jc.S3Endpoint
	}
	if jc.S3AccessKey != nil {
		cfg.S3AccessKey = *jc.S3AccessKey
	}
	if jc.S3SecretKey != nil {
		cfg.S3SecretKey = *jc.S3SecretKey
	}
}
