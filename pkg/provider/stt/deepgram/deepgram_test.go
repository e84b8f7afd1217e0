package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/coder/websocket"
)

func TestStreamURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		want map[string]string
		keys []string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"model": "nova-3", "language": "en", "encoding": "linear16",
				"sample_rate": "16000", "channels": "1", "punctuate": "false",
				"interim_results": "false", "filler_words": "true",
			},
		},
		{
			name: "custom",
			opts: []Option{WithModel("base"), WithLanguage("de-DE"), WithKeyterms("na", "da")},
			want: map[string]string{"model": "base", "language": "de-DE"},
			keys: []string{"na", "da"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tc.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.streamURL()
			if err != nil {
				t.Fatalf("streamURL: %v", err)
			}
			u, _ := url.Parse(raw)
			q := u.Query()
			for k, v := range tc.want {
				if q.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, q.Get(k), v)
				}
			}
			if !slices.Equal(q["keyterm"], tc.keys) {
				t.Errorf("keyterm = %v, want %v", q["keyterm"], tc.keys)
			}
		})
	}

	bad, _ := New("key", WithEndpoint("://nope"))
	if _, err := bad.streamURL(); err == nil {
		t.Error("expected error for malformed endpoint")
	}
}

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		msg       string
		wantWords []string
		wantDone  bool
	}{
		{
			name:      "final results",
			msg:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"words":[{"word":"na","start":0.1,"end":0.35,"confidence":0.6},{"word":"na","start":0.35,"end":0.8,"confidence":0.5}]}]}}`,
			wantWords: []string{"na", "na"},
		},
		{name: "interim", msg: `{"type":"Results","is_final":false,"channel":{"alternatives":[{"words":[{"word":"x"}]}]}}`},
		{name: "speech started", msg: `{"type":"SpeechStarted"}`},
		{name: "no alternatives", msg: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "undecodable", msg: `{not json`},
		{name: "metadata ends stream", msg: `{"type":"Metadata","request_id":"abc"}`, wantDone: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			words, done := parseMessage([]byte(tc.msg))
			var got []string
			for _, w := range words {
				got = append(got, w.Text)
			}
			if !slices.Equal(got, tc.wantWords) || done != tc.wantDone {
				t.Errorf("parseMessage = %v, %v; want %v, %v", got, done, tc.wantWords, tc.wantDone)
			}
		})
	}

	words, _ := parseMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"words":[{"word":"hey","start":0.25,"end":0.5,"confidence":0.8}]}]}}`))
	if words[0].Start != 250*time.Millisecond || words[0].End != 500*time.Millisecond || words[0].Confidence != 0.8 {
		t.Errorf("timing = %+v", words[0])
	}
}

// fakeListen accepts one stream, counts audio bytes until CloseStream and
// replies with two final words and Metadata.
func fakeListen(t *testing.T, received *atomic.Int64, auth *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				received.Add(int64(len(data)))
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				break
			}
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"words":[
			{"word":"money","start":0.0,"end":0.4,"confidence":0.9},
			{"word":"mind","start":0.4,"end":0.9,"confidence":0.7}]}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	var auth atomic.Value
	srv := fakeListen(t, &received, &auth)

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Half a second at 16 kHz is 16000 bytes of linear16.
	words, err := p.Transcribe(ctx, audio.Buffer{Samples: make([]float32, 8000), SampleRate: streamRate})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(words) != 2 || words[1].Text != "mind" {
		t.Errorf("words = %+v", words)
	}
	if got := received.Load(); got != 16000 {
		t.Errorf("server received %d bytes, want 16000", got)
	}
	if auth.Load() != "Token secret" {
		t.Errorf("Authorization = %v", auth.Load())
	}
}

func TestTranscribe_DialFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	p, _ := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if _, err := p.Transcribe(context.Background(), audio.Buffer{Samples: make([]float32, 160), SampleRate: streamRate}); err == nil {
		t.Error("expected dial error")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel || p.language != defaultLanguage || p.endpoint != deepgramEndpoint || p.keyterms != nil {
		t.Errorf("defaults = %+v", p)
	}
}
