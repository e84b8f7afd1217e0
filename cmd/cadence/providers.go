package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/cadence/internal/config"
	"github.com/MrWong99/cadence/internal/resilience"
	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/MrWong99/cadence/pkg/lexicon/cmudict"
	"github.com/MrWong99/cadence/pkg/provider/llm"
	"github.com/MrWong99/cadence/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/cadence/pkg/provider/llm/mock"
	"github.com/MrWong99/cadence/pkg/provider/llm/openai"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/cadence/pkg/provider/stt/mock"
	"github.com/MrWong99/cadence/pkg/provider/stt/whisper"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile share the
	// same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// openai goes through the official SDK for JSON mode and retries.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// mock answers with canned lines so the pipeline can run without a model.
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return llmmock.NewCanned(), nil
	})

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if terms, ok := entry.Options["keyterms"].([]any); ok {
			for _, term := range terms {
				if s, ok := term.(string); ok && s != "" {
					opts = append(opts, deepgram.WithKeyterms(s))
				}
			}
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, whisper.WithNativePrompt(prompt))
		}
		if threads, ok := entry.Options["threads"].(int); ok && threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(threads)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// mock hears nothing; every segment is labelled from audio alone.
	reg.RegisterTranscriber("mock", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{}, nil
	})

	// ── Lexicon ───────────────────────────────────────────────────────────────

	reg.RegisterLexicon("cmudict", func(entry config.ProviderEntry) (lexicon.Lexicon, error) {
		path := optString(entry.Options, "path")
		if path == "" {
			return nil, fmt.Errorf("cmudict: options.path is required")
		}
		var opts []cmudict.Option
		if th, ok := entry.Options["nearest_threshold"].(float64); ok {
			opts = append(opts, cmudict.WithNearestThreshold(th))
		}
		return cmudict.Open(path, opts...)
	})

	for _, kind := range []string{"llm", "transcriber", "lexicon"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// providers is the set of collaborators built from the configuration.
type providers struct {
	llm             llm.Provider
	llmName         string
	transcriber     stt.Transcriber
	transcriberName string
	lexicon         lexicon.Lexicon
}

// buildProviders creates every configured provider. Configured fallbacks wrap
// the primary in a resilience group. Any construction failure is fatal.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	p := &providers{}
	pc := cfg.Providers

	primary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm %q: %w", pc.LLM.Name, err)
	}
	p.llm, p.llmName = primary, pc.LLM.Name
	if len(pc.LLMFallbacks) > 0 {
		group := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{})
		for _, fb := range pc.LLMFallbacks {
			alt, err := reg.CreateLLM(fb)
			if err != nil {
				return nil, fmt.Errorf("llm fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, alt)
		}
		p.llm = group
		slog.Info("llm failover enabled", "order", group.Names())
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model)

	if pc.Transcriber.Name != "" {
		primary, err := reg.CreateTranscriber(pc.Transcriber)
		if err != nil {
			return nil, fmt.Errorf("transcriber %q: %w", pc.Transcriber.Name, err)
		}
		p.transcriber, p.transcriberName = primary, pc.Transcriber.Name
		if len(pc.TranscriberFallbacks) > 0 {
			group := resilience.NewTranscriberFallback(primary, pc.Transcriber.Name, resilience.FallbackConfig{})
			for _, fb := range pc.TranscriberFallbacks {
				alt, err := reg.CreateTranscriber(fb)
				if err != nil {
					return nil, fmt.Errorf("transcriber fallback %q: %w", fb.Name, err)
				}
				group.AddFallback(fb.Name, alt)
			}
			p.transcriber = group
			slog.Info("transcriber failover enabled", "order", group.Names())
		}
		slog.Info("provider created", "kind", "transcriber", "name", pc.Transcriber.Name)
	}

	lex, err := reg.CreateLexicon(pc.Lexicon)
	if err != nil {
		return nil, fmt.Errorf("lexicon %q: %w", pc.Lexicon.Name, err)
	}
	p.lexicon = lex
	slog.Info("provider created", "kind", "lexicon", "name", pc.Lexicon.Name)

	return p, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string such as "30s" from Options. Invalid or
// missing values yield zero.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
