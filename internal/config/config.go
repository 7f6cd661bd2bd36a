// Package config holds the aggregator's tunables and the CLI-flag / JSON
// overlay that populates them, mirroring kcptun's server/config.go shape:
// a JSON-tagged struct plus an optional "--config" file that overrides
// whatever the command line set (spec §6; additive, not a replacement for
// the documented flags).
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// defaultFDBudget is the historical fd ceiling the documented default
// max-bucket-count derives from (spec §6): (1024-7)/2.
const defaultFDBudget = 1024

// DefaultMaxBucketCount is spec §6's documented default for -c/--max-bucket-count.
const DefaultMaxBucketCount = (defaultFDBudget - 7) / 2

// Config collects every tunable spec §6 documents.
type Config struct {
	Address        string `json:"address"`
	Port           int    `json:"port"`
	StoragePath    string `json:"storage_path"`
	MaxBucketCount int    `json:"max_bucket_count"`
	MaxBucketSize  int    `json:"max_bucket_size"`
	MaxBucketIdle  int    `json:"max_bucket_idle"`
	MaxBucketTTL   int    `json:"max_bucket_ttl"`
}

// Default returns the configuration spec §6 documents as defaults.
func Default() Config {
	return Config{
		Address:        "0.0.0.0",
		Port:           2323,
		StoragePath:    ".",
		MaxBucketCount: DefaultMaxBucketCount,
		MaxBucketSize:  50,
		MaxBucketIdle:  10,
		MaxBucketTTL:   60,
	}
}

// LoadJSONOverlay decodes path onto cfg, overriding whichever fields the
// file sets. Mirrors kcptun's parseJSONConfig: flags are parsed first,
// then this overlay is applied on top when --config is given.
func LoadJSONOverlay(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "config: open %s", path)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrapf(err, "config: decode %s", path)
	}
	return nil
}

// Validate rejects configurations that can never admit a bucket or would
// make the idle/TTL timers meaningless.
func (c Config) Validate() error {
	if c.MaxBucketCount < 2 {
		return errors.Errorf("config: max-bucket-count must be >= 2, got %d", c.MaxBucketCount)
	}
	if c.MaxBucketSize < 1 {
		return errors.Errorf("config: max-bucket-size must be >= 1, got %d", c.MaxBucketSize)
	}
	if c.MaxBucketIdle < 1 {
		return errors.Errorf("config: max-bucket-idle must be >= 1, got %d", c.MaxBucketIdle)
	}
	if c.MaxBucketTTL < 1 {
		return errors.Errorf("config: max-bucket-ttl must be >= 1, got %d", c.MaxBucketTTL)
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("config: port out of range: %d", c.Port)
	}
	return nil
}
