package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
	"transcriber": {"deepgram", "whisper", "whisper-native", "mock"},
	"lexicon":     {"cmudict"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("lexicon", cfg.Providers.Lexicon.Name)
	if cfg.Providers.LLM.Name == "" {
		add("providers.llm.name is required")
	}
	if cfg.Providers.Lexicon.Name == "" {
		add("providers.lexicon.name is required")
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			add("providers.llm_fallbacks[%d].name is required", i)
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.TranscriberFallbacks {
		if fb.Name == "" {
			add("providers.transcriber_fallbacks[%d].name is required", i)
		}
		validateProviderName("transcriber", fb.Name)
	}
	if cfg.Providers.Transcriber.Name == "" {
		if len(cfg.Providers.TranscriberFallbacks) > 0 {
			add("providers.transcriber_fallbacks requires providers.transcriber")
		} else {
			slog.Warn("providers.transcriber is not configured; phoneme labels will come from audio only")
		}
	}

	// Segmenter
	seg := cfg.Segmenter
	if seg.BaseDelta < 0 {
		add("segmenter.base_delta %.3f must not be negative", seg.BaseDelta)
	}
	if seg.EnergyRatio < 0 || seg.EnergyRatio > 1 {
		add("segmenter.energy_ratio %.3f is out of range [0, 1]", seg.EnergyRatio)
	}
	if seg.BreathEnergyRatio < 0 || seg.BreathEnergyRatio > 1 {
		add("segmenter.breath_energy_ratio %.3f is out of range [0, 1]", seg.BreathEnergyRatio)
	}
	if seg.MinGap < 0 || seg.Tail < 0 || seg.MinSegment < 0 || seg.MaxSegment < 0 {
		add("segmenter durations must not be negative")
	}
	if seg.MinSegment > 0 && seg.MaxSegment > 0 && seg.MinSegment >= seg.MaxSegment {
		add("segmenter.min_segment %s must be shorter than segmenter.max_segment %s", seg.MinSegment, seg.MaxSegment)
	}
	for i, m := range seg.Multipliers {
		if m <= 0 {
			add("segmenter.multipliers[%d] %.3f must be positive", i, m)
		}
	}

	// Prosody
	pro := cfg.Prosody
	if pro.StressThreshold < 0 {
		add("prosody.stress_threshold %.3f must not be negative", pro.StressThreshold)
	}
	if pro.StressWindow < 0 {
		add("prosody.stress_window %d must not be negative", pro.StressWindow)
	}
	if pro.SustainThreshold < 0 {
		add("prosody.sustain_threshold %s must not be negative", pro.SustainThreshold)
	}
	if pro.LowHz > 0 && pro.HighHz > 0 && pro.LowHz >= pro.HighHz {
		add("prosody.low_hz %.1f must be below prosody.high_hz %.1f", pro.LowHz, pro.HighHz)
	}

	// Generation
	gen := cfg.Generation
	if gen.Candidates < 1 || gen.Candidates > 20 {
		add("generation.candidates %d is out of range [1, 20]", gen.Candidates)
	}
	if gen.Temperature < 0 || gen.Temperature > 2 {
		add("generation.temperature %.2f is out of range [0, 2]", gen.Temperature)
	}
	if gen.MaxTokens < 0 {
		add("generation.max_tokens %d must not be negative", gen.MaxTokens)
	}
	if gen.Timeout < 0 {
		add("generation.timeout %s must not be negative", gen.Timeout)
	}
	if gen.MaxRetries > 3 {
		slog.Warn("generation.max_retries is capped at 3", "configured", gen.MaxRetries)
	}

	// Pipeline
	pl := cfg.Pipeline
	if pl.Workers < 0 {
		add("pipeline.workers %d must not be negative", pl.Workers)
	}
	if pl.MaxBlockDuration < 0 || pl.BlockTimeout < 0 || pl.ChunkPadding < 0 {
		add("pipeline durations must not be negative")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
