// Package deepgram transcribes buffers with the Deepgram streaming API.
//
// Deepgram only offers word timings on its live endpoint, so a bounded buffer
// is replayed over a websocket in short frames, the stream is closed, and the
// final results are gathered until the server's Metadata message.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/types"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// streamRate is the rate audio is resampled to before sending.
	streamRate = 16000

	// frameDuration is the audio carried by one binary message.
	frameDuration = 100 * time.Millisecond
)

var _ stt.Transcriber = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Deepgram model. Default: nova-3.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 recognition language. Default: en.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the streaming endpoint, for self-hosted deployments
// and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithKeyterms boosts recognition of the given words. Vocables such as "na"
// or "da" help the model keep hummed syllables it would otherwise drop.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) { p.keyterms = append(p.keyterms, terms...) }
}

// Provider implements [stt.Transcriber].
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	keyterms []string
}

// New returns a provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Transcriber]. The buffer is resampled to 16 kHz
// and sent as mono linear16.
func (p *Provider) Transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error) {
	streamURL, err := p.streamURL()
	if err != nil {
		return nil, fmt.Errorf("deepgram: endpoint %q: %w", p.endpoint, err)
	}
	conn, _, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	pcm := audio.PCM16(audio.Resample(buf, streamRate).Samples)
	sent := make(chan error, 1)
	go func() { sent <- sendFrames(ctx, conn, pcm) }()

	words, err := receiveWords(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := <-sent; err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return stt.CleanWords(words), nil
}

// sendFrames writes pcm in frameDuration slices, then asks the server to
// flush and finish.
func sendFrames(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	const step = 2 * streamRate * int(frameDuration/time.Millisecond) / 1000
	for off := 0; off < len(pcm); off += step {
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:min(off+step, len(pcm))]); err != nil {
			return fmt.Errorf("deepgram: send audio at byte %d: %w", off, err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// receiveWords collects final words until Metadata arrives or the server
// closes normally.
func receiveWords(ctx context.Context, conn *websocket.Conn) ([]types.TranscribedWord, error) {
	var words []types.TranscribedWord
	for {
		_, msg, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return words, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("deepgram: %w", ctx.Err())
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		got, done := parseMessage(msg)
		words = append(words, got...)
		if done {
			return words, nil
		}
	}
}

func (p *Provider) streamURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(streamRate))
	q.Set("channels", "1")
	q.Set("punctuate", "false")
	q.Set("interim_results", "false")
	q.Set("filler_words", "true")
	for _, term := range p.keyterms {
		q.Add("keyterm", term)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// message is the subset of a Results or Metadata event used here.
type message struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Words []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseMessage returns the final words in a raw event. done reports the end
// of the stream. Undecodable events are skipped.
func parseMessage(data []byte) (words []types.TranscribedWord, done bool) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	switch {
	case m.Type == "Metadata":
		return nil, true
	case m.Type != "Results" || !m.IsFinal || len(m.Channel.Alternatives) == 0:
		return nil, false
	}
	for _, w := range m.Channel.Alternatives[0].Words {
		words = append(words, types.TranscribedWord{
			Text:       w.Word,
			Start:      types.FromSeconds(w.Start),
			End:        types.FromSeconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return words, false
}
