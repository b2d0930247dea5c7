package config_test

import (
	"testing"

	"github.com/gyojeong/bff/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Clova:  config.ClovaConfig{APIKey: "k", Model: "HCX-005"},
		Kafka:  config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "collect-events"},
		Pipeline: config.PipelineConfig{
			ErrorThreshold:      6.0,
			SimilarityThreshold: 0.6,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Server.LogLevel = config.LogDebug

	d := config.Diff(old, updated)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change must not require a restart")
	}
}

func TestDiff_PipelineChanged(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	updated := baseConfig()
	updated.Pipeline.SimilarityThreshold = 0.7

	d := config.Diff(old, updated)
	if !d.PipelineChanged {
		t.Error("expected PipelineChanged=true")
	}
	if d.NewPipeline.SimilarityThreshold != 0.7 {
		t.Errorf("NewPipeline = %+v", d.NewPipeline)
	}
	if d.RestartRequired {
		t.Error("pipeline threshold change must not require a restart")
	}
}

func TestDiff_StaticChangeRequiresRestart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"clova model", func(c *config.Config) { c.Clova.Model = "HCX-007" }},
		{"kafka brokers", func(c *config.Config) { c.Kafka.Brokers = append(c.Kafka.Brokers, "other:9092") }},
		{"postgres dsn", func(c *config.Config) { c.Postgres.DSN = "postgres://other/db" }},
		{"tls added", func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old := baseConfig()
			updated := baseConfig()
			tc.mutate(updated)

			d := config.Diff(old, updated)
			if !d.RestartRequired {
				t.Errorf("expected RestartRequired=true for %s change", tc.name)
			}
		})
	}
}

func TestDiff_EqualTLSPointersAreNotAChange(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	old.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
	updated := baseConfig()
	updated.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}

	if d := config.Diff(old, updated); d.Changed() {
		t.Errorf("distinct pointers with equal TLS values must not diff, got %+v", d)
	}
}
