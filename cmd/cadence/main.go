// Command cadence turns a hummed or mumbled melody into candidate lyric lines
// that fit its rhythm.
//
// Usage:
//
//	cadence -config cadence.yaml -audio hum.wav
//	cadence -config cadence.yaml -track demo.wav -run-id session-42
//
// -audio treats the whole file as one block. -track splits the file at
// silences and processes the phrases concurrently. Results are printed as
// JSON on stdout and, when store.postgres_dsn is set, persisted under the run
// id.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/generate"
	"github.com/MrWong99/cadence/internal/health"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/pipeline"
	"github.com/MrWong99/cadence/internal/prompt"
	"github.com/MrWong99/cadence/internal/resultstore"
	"github.com/MrWong99/cadence/internal/resultstore/postgres"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

// output is the JSON document written to stdout.
type output struct {
	RunID   string                   `json:"run_id"`
	Results []types.GenerationResult `json:"results"`
}

func run() int {
	configPath := flag.String("config", "cadence.yaml", "path to the YAML configuration file")
	audioPath := flag.String("audio", "", "WAV file processed as a single block")
	trackPath := flag.String("track", "", "WAV file split at silences into blocks")
	runID := flag.String("run-id", "", "identifier for persisted results (default: random)")
	flag.Parse()

	if (*audioPath == "") == (*trackPath == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -audio or -track is required")
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("cadence starting", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := output{RunID: *runID}
	if out.RunID == "" {
		out.RunID = resultstore.NewRunID()
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		RunID:          out.RunID,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	provs, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	templater, err := newTemplater(cfg.Generation)
	if err != nil {
		slog.Error("failed to load prompt templates", "err", err)
		return 1
	}

	var store resultstore.Store
	checkers := []health.Checker{{Name: "lexicon", Check: func(ctx context.Context) error {
		_, err := provs.lexicon.Phonemize(ctx, "hello")
		return err
	}}}
	if cfg.Store.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to open result store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Checker{Name: "store", Check: pg.Ping})
	}

	// Fallback chains report when every breaker is open.
	for _, dep := range []struct {
		name string
		p    any
	}{{"llm", provs.llm}, {"transcriber", provs.transcriber}} {
		if c, ok := dep.p.(interface{ Check(context.Context) error }); ok {
			checkers = append(checkers, health.Checker{Name: dep.name, Check: c.Check})
		}
	}

	hh := health.New(checkers...)
	if cfg.Server.ListenAddr != "" {
		ops, err := startOps(cfg.Server.ListenAddr, newOpsHandler(hh, metrics))
		if err != nil {
			slog.Error("failed to start ops server", "addr", cfg.Server.ListenAddr, "err", err)
			return 1
		}
		defer ops.Shutdown()
	}

	p, err := pipeline.New(pipelineConfig(cfg), pipeline.Deps{
		Transcriber:     provs.transcriber,
		TranscriberName: provs.transcriberName,
		Lexicon:         provs.lexicon,
		Generator: generate.NewLLM(provs.llm,
			generate.WithTemperature(cfg.Generation.Temperature),
			generate.WithMaxTokens(cfg.Generation.MaxTokens),
			generate.WithSeed(cfg.Generation.Seed),
		),
		GeneratorName: provs.llmName,
		Templater:     templater,
		Metrics:       metrics,
		Logger:        slog.Default(),
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	hh.SetReady(true)
	defer hh.SetReady(false)
	if rep := hh.Check(ctx); !rep.OK() {
		slog.Warn("dependency checks failing at startup", "failed", rep.Failed(), "checks", rep.Checks)
	}

	ctx, span := observe.StartRunSpan(ctx, out.RunID)
	defer span.End()
	observe.Logger(ctx).Info("run started", "mode", mode(*audioPath))

	if *audioPath != "" {
		buf, err := audio.Load(*audioPath)
		if err != nil {
			slog.Error("failed to read audio", "path", *audioPath, "err", err)
			return 1
		}
		res, err := p.Run(ctx, 0, buf)
		if err != nil {
			slog.Error("analysis failed", "path", *audioPath, "err", err)
			return 1
		}
		out.Results = []types.GenerationResult{res}
	} else {
		buf, err := audio.Load(*trackPath)
		if err != nil {
			slog.Error("failed to read audio", "path", *trackPath, "err", err)
			return 1
		}
		out.Results = p.RunTrack(ctx, buf)
	}

	if store != nil {
		if err := resultstore.SaveAll(ctx, store, out.RunID, out.Results); err != nil {
			slog.Error("failed to persist results", "run_id", out.RunID, "err", err)
		} else {
			slog.Info("results persisted", "run_id", out.RunID, "blocks", len(out.Results))
		}
	}

	if err := writeOutput(os.Stdout, out); err != nil {
		slog.Error("failed to write results", "err", err)
		return 1
	}
	logSummary(out)
	if errors.Is(ctx.Err(), context.Canceled) {
		slog.Info("interrupted")
	}
	return 0
}

func mode(audioPath string) string {
	if audioPath != "" {
		return "single"
	}
	return "track"
}

// pipelineConfig maps the file configuration onto the orchestrator's.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		Candidates:       cfg.Generation.Candidates,
		MaxRetries:       cfg.Generation.MaxRetries,
		GenerateTimeout:  cfg.Generation.Timeout,
		MaxBlockDuration: cfg.Pipeline.MaxBlockDuration,
		ChunkPadding:     cfg.Pipeline.ChunkPadding,
		Workers:          cfg.Pipeline.Workers,
		BlockTimeout:     cfg.Pipeline.BlockTimeout,
		Segmenter:        cfg.Segmenter,
		Prosody:          cfg.Prosody,
		Align:            cfg.Align,
	}
}

func newTemplater(gen config.GenerationConfig) (prompt.Templater, error) {
	if gen.TemplateDir == "" {
		return prompt.Default(), nil
	}
	return prompt.FromDir(gen.TemplateDir)
}

func writeOutput(w io.Writer, out output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func logSummary(out output) {
	var matched, failed int
	for _, r := range out.Results {
		switch {
		case r.Best >= 0:
			matched++
		case r.Err != "":
			failed++
		}
	}
	slog.Info("run complete",
		"run_id", out.RunID,
		"blocks", len(out.Results),
		"matched", matched,
		"failed", failed,
	)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
