// Command gyojeong is the writing feedback server for Korean learners.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gyojeong/bff/internal/app"
	"github.com/gyojeong/bff/internal/config"
	"github.com/gyojeong/bff/internal/observe"
	"github.com/gyojeong/bff/pkg/provider/embeddings"
	"github.com/gyojeong/bff/pkg/provider/embeddings/tei"
	"github.com/gyojeong/bff/pkg/provider/llm"
	"github.com/gyojeong/bff/pkg/provider/llm/clova"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can change it at
	// runtime without rebuilding the handler.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load configuration (and keep watching the file) ───────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(level, old, new)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "gyojeong: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "gyojeong: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("gyojeong starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "gyojeong",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := shutdownOtel(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyReload is the config watcher callback. Only the log level can be
// applied in place; everything else is surfaced so the operator knows a
// restart is needed.
func applyReload(level *slog.LevelVar, old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.PipelineChanged {
		slog.Warn("pipeline thresholds changed, restart to apply",
			"error_threshold", d.NewPipeline.ErrorThreshold,
			"similarity_threshold", d.NewPipeline.SimilarityThreshold,
		)
	}
	if d.RestartRequired {
		slog.Warn("configuration changed in ways that require a restart")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// gyojeong into reg: the CLOVA Studio chat model and the text embeddings
// inference encoder.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("clova", func(cfg *config.Config) (llm.Provider, error) {
		var opts []clova.Option
		if url := clovaURL(cfg.Clova); url != "" {
			opts = append(opts, clova.WithURL(url))
		}
		if limiter := app.ClovaLimiter(cfg.Clova.RequestsPerMinute); limiter != nil {
			opts = append(opts, clova.WithLimiter(limiter))
		}
		return clova.New(cfg.Clova.APIKey, opts...)
	})

	reg.RegisterEmbeddings("tei", func(cfg *config.Config) (embeddings.Provider, error) {
		var opts []tei.Option
		if cfg.Encoder.Dimensions > 0 {
			opts = append(opts, tei.WithDimensions(cfg.Encoder.Dimensions))
		}
		return tei.New(cfg.Encoder.BaseURL, cfg.Encoder.Model, opts...)
	})
}

// clovaURL resolves the chat-completions endpoint from the config. An
// explicit base URL wins; otherwise a configured model name is substituted
// into the default endpoint. An empty result keeps the client's default.
func clovaURL(c config.ClovaConfig) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Model != "" {
		i := strings.LastIndex(clova.DefaultURL, "/")
		return clova.DefaultURL[:i+1] + c.Model
	}
	return ""
}

// buildProviders instantiates the configured providers through the registry
// and returns them in an [app.Providers] struct. The LLM is mandatory; the
// embeddings encoder is only built when an endpoint is configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateLLM("clova", cfg)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "llm", "name", "clova")

	if cfg.Encoder.BaseURL != "" {
		e, err := reg.CreateEmbeddings("tei", cfg)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider: %w", err)
		}
		ps.Embeddings = e
		slog.Info("provider created", "kind", "embeddings", "name", "tei", "model", e.ModelID())
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	model := cfg.Clova.Model
	if model == "" && cfg.Clova.BaseURL == "" {
		model = "HCX-007"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        gyojeong startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printBackend("LLM", "clova / "+model)
	printBackend("Encoder", orDisabled(cfg.Encoder.BaseURL, "tei / "+cfg.Encoder.Model))
	printBackend("Morph", orDisabled(cfg.Morph.BaseURL, cfg.Morph.BaseURL))
	printBackend("Chroma", orDisabled(cfg.Chroma.BaseURL, cfg.Chroma.Collection))
	if len(cfg.Elasticsearch.Addresses) > 0 {
		printBackend("Elasticsearch", fmt.Sprintf("%d node(s)", len(cfg.Elasticsearch.Addresses)))
	} else {
		printBackend("Elasticsearch", "(disabled)")
	}
	printBackend("Postgres", orDisabled(cfg.Postgres.DSN, "connected"))
	if len(cfg.Kafka.Brokers) > 0 {
		printBackend("Kafka", fmt.Sprintf("%d broker(s)", len(cfg.Kafka.Brokers)))
	} else {
		printBackend("Kafka", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printBackend("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printBackend(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", kind, value)
}

// orDisabled shows value when the backend is configured, "(disabled)" when
// the gating field is empty.
func orDisabled(gate, value string) string {
	if gate == "" {
		return "(disabled)"
	}
	return value
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
