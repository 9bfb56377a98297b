// Package config loads the deployment configuration for the abeguard
// services from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/errwrap"
	"gopkg.in/yaml.v2"
)

// Duration wraps time.Duration so values can be written as "30s" or "5m"
// in the YAML file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errwrap.Wrapf(fmt.Sprintf("invalid duration %q: {{err}}", s), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the full deployment configuration.
type Config struct {
	// Suite selects the pairing backend, "bn256" or "pbc".
	Suite string `yaml:"suite"`

	Authority AuthorityConfig `yaml:"authority"`
	Quota     QuotaConfig     `yaml:"quota"`
	Blob      BlobConfig      `yaml:"blob"`
}

// AuthorityConfig selects and configures the download authority variant.
type AuthorityConfig struct {
	// Variant is "online" or "enclave".
	Variant string `yaml:"variant"`

	TicketTTL Duration `yaml:"ticket_ttl"`

	// Enclave-only settings. Ignored for the online variant.
	SyncInterval   Duration `yaml:"sync_interval"`
	StalenessBound Duration `yaml:"staleness_bound"`
}

// QuotaConfig sets the per-requester rate limit and its backing store.
type QuotaConfig struct {
	Limit  int      `yaml:"limit"`
	Window Duration `yaml:"window"`

	// MySQLDSN, when set, persists quota windows across restarts.
	// Empty means in-memory only.
	MySQLDSN string `yaml:"mysql_dsn"`
}

// BlobConfig points at the ciphertext store. An empty bucket selects the
// in-memory store.
type BlobConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Suite: "bn256",
		Authority: AuthorityConfig{
			Variant:        "online",
			TicketTTL:      Duration{30 * time.Second},
			SyncInterval:   Duration{10 * time.Second},
			StalenessBound: Duration{time.Minute},
		},
		Quota: QuotaConfig{
			Limit:  10,
			Window: Duration{time.Minute},
		},
	}
}

// Load reads path, layering the file's values over Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errwrap.Wrapf("failed to read config file: {{err}}", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errwrap.Wrapf("failed to parse config file: {{err}}", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Suite {
	case "bn256", "pbc":
	default:
		return fmt.Errorf("unknown pairing suite %q", c.Suite)
	}
	switch c.Authority.Variant {
	case "online", "enclave":
	default:
		return fmt.Errorf("unknown authority variant %q", c.Authority.Variant)
	}
	if c.Quota.Limit <= 0 {
		return fmt.Errorf("quota limit must be positive, got %d", c.Quota.Limit)
	}
	if c.Quota.Window.Duration <= 0 {
		return fmt.Errorf("quota window must be positive, got %s", c.Quota.Window)
	}
	if c.Authority.Variant == "enclave" && c.Authority.StalenessBound.Duration <= 0 {
		return fmt.Errorf("enclave staleness bound must be positive, got %s", c.Authority.StalenessBound)
	}
	return nil
}
