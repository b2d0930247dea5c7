package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides replaces secret-bearing fields with values from the
// environment when set. Environment always wins over the file so that
// credentials can stay out of checked-in configs.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLOVA_API_KEY"); v != "" {
		cfg.Clova.APIKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Clova
	if cfg.Clova.APIKey == "" {
		errs = append(errs, errors.New("clova.api_key is required (or set CLOVA_API_KEY)"))
	}
	if cfg.Clova.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("clova.requests_per_minute %d must not be negative", cfg.Clova.RequestsPerMinute))
	}
	validateURL(&errs, "clova.base_url", cfg.Clova.BaseURL)

	// Sidecars
	validateURL(&errs, "morph.base_url", cfg.Morph.BaseURL)
	if cfg.Morph.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("morph.concurrency %d must not be negative", cfg.Morph.Concurrency))
	}
	validateURL(&errs, "encoder.base_url", cfg.Encoder.BaseURL)
	if cfg.Encoder.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("encoder.dimensions %d must not be negative", cfg.Encoder.Dimensions))
	}

	// Retrieval backends
	validateURL(&errs, "chroma.base_url", cfg.Chroma.BaseURL)
	if cfg.Chroma.BaseURL != "" && cfg.Chroma.Collection == "" {
		errs = append(errs, errors.New("chroma.collection is required when chroma.base_url is set"))
	}
	for i, addr := range cfg.Elasticsearch.Addresses {
		validateURL(&errs, fmt.Sprintf("elasticsearch.addresses[%d]", i), addr)
	}

	// Availability warnings for optional backends. The pipeline degrades
	// gracefully without them, so these are not errors.
	if cfg.Chroma.BaseURL == "" {
		slog.Warn("chroma.base_url is empty; vector retrieval will be unavailable")
	}
	if len(cfg.Elasticsearch.Addresses) == 0 {
		slog.Warn("elasticsearch.addresses is empty; lexical fallback retrieval will be unavailable")
	}
	if cfg.Postgres.DSN == "" {
		slog.Warn("postgres.dsn is empty; grammar dictionary lookups will be unavailable")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		slog.Warn("kafka.brokers is empty; feedback events will not be published")
	}

	// Pipeline thresholds
	if cfg.Pipeline.ErrorThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.error_threshold %.2f must not be negative", cfg.Pipeline.ErrorThreshold))
	}
	if cfg.Pipeline.SimilarityThreshold < 0 || cfg.Pipeline.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold %.2f is out of range [0, 1]", cfg.Pipeline.SimilarityThreshold))
	}

	return errors.Join(errs...)
}

// validateURL appends an error when value is non-empty and not an absolute
// http(s) URL.
func validateURL(errs *[]error, field, value string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		*errs = append(*errs, fmt.Errorf("%s %q is not a valid http(s) URL", field, value))
	}
}
