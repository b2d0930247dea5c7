package config

// ConfigDiff describes what changed between two configs. The log level can
// be applied in place; pipeline threshold changes and everything under
// RestartRequired are surfaced so the operator can decide to restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PipelineChanged bool
	NewPipeline     PipelineConfig

	// RestartRequired is true when fields outside the tracked set
	// (endpoints, credentials, broker lists) differ between the two configs.
	RestartRequired bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PipelineChanged || d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
		d.NewPipeline = new.Pipeline
	}

	// Any other difference means a component holds a stale value.
	oldRest, newRest := *old, *new
	oldRest.Server.LogLevel, newRest.Server.LogLevel = "", ""
	oldRest.Pipeline, newRest.Pipeline = PipelineConfig{}, PipelineConfig{}
	if !equalStatic(&oldRest, &newRest) {
		d.RestartRequired = true
	}

	return d
}

// equalStatic compares the non-hot-reloadable portion of two configs.
func equalStatic(a, b *Config) bool {
	if a.Server.ListenAddr != b.Server.ListenAddr || !equalTLS(a.Server.TLS, b.Server.TLS) {
		return false
	}
	if a.Clova != b.Clova || a.Morph != b.Morph ||
		a.Encoder != b.Encoder || a.Chroma != b.Chroma || a.Postgres != b.Postgres {
		return false
	}
	if !equalStrings(a.Elasticsearch.Addresses, b.Elasticsearch.Addresses) ||
		a.Elasticsearch.Index != b.Elasticsearch.Index {
		return false
	}
	if !equalStrings(a.Kafka.Brokers, b.Kafka.Brokers) ||
		a.Kafka.Topic != b.Kafka.Topic || a.Kafka.FallbackPath != b.Kafka.FallbackPath {
		return false
	}
	return true
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
