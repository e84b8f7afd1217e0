// Package whisper provides whisper.cpp-backed transcribers.
//
// [Provider] talks to a running whisper-server binary over its REST API
// (POST /inference) and requests verbose JSON output so that word-level time
// stamps are available. [NativeProvider] links the whisper.cpp library
// directly through its Go bindings.
//
// Both decode greedily at temperature zero so that repeated runs over the same
// buffer produce identical words.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	words, err := p.Transcribe(ctx, buf)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/types"
)

const (
	// defaultSilenceThreshold is the RMS level (full scale = 1) below which a
	// buffer is treated as silent and not sent to the server at all.
	defaultSilenceThreshold = 0.01

	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty (the default) the server uses
// whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the rate audio is resampled to before upload.
// Defaults to 16000, which is what whisper models are trained on.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithSilenceThreshold sets the RMS level below which a buffer is considered
// silent and transcription is skipped. Defaults to 0.01.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.silenceThreshold = rms
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 60 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL        string
	model            string
	language         string
	sampleRate       int
	silenceThreshold float64
	httpClient       *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:        serverURL,
		language:         defaultLanguage,
		sampleRate:       defaultSampleRate,
		silenceThreshold: defaultSilenceThreshold,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber. Silent buffers return no words
// without contacting the server.
func (p *Provider) Transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if audio.RMS(buf.Samples) < p.silenceThreshold {
		return nil, nil
	}

	wav := audio.EncodeWAV(audio.Resample(buf, p.sampleRate))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"temperature_inc": "0.0",
		"language":        p.language,
		"model":           p.model,
	}
	for _, k := range []string{"response_format", "temperature", "temperature_inc", "language", "model"} {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	return parseVerboseJSON(data)
}

// verboseResponse is the subset of whisper-server's verbose_json output used
// here.
type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// parseVerboseJSON extracts timed words. Segments without word-level detail
// have their text spread evenly over the segment span.
func parseVerboseJSON(data []byte) ([]types.TranscribedWord, error) {
	var resp verboseResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	var words []types.TranscribedWord
	for _, seg := range resp.Segments {
		if len(seg.Words) == 0 {
			words = append(words, stt.SpreadWords(seg.Text, types.FromSeconds(seg.Start), types.FromSeconds(seg.End))...)
			continue
		}
		for _, w := range seg.Words {
			words = append(words, types.TranscribedWord{
				Text:       w.Word,
				Start:      types.FromSeconds(w.Start),
				End:        types.FromSeconds(w.End),
				Confidence: w.Probability,
			})
		}
	}
	return stt.CleanWords(words), nil
}
