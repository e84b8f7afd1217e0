package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with
// body. It records the multipart fields of the last request into fields and
// increments *callCount on every matched request.
func newMockServer(t *testing.T, body any, callCount *atomic.Int32, fields map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fields != nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			if fh := r.MultipartForm.File["file"]; len(fh) == 1 {
				f, _ := fh[0].Open()
				data, _ := io.ReadAll(f)
				f.Close()
				if len(data) > 44 && string(data[:4]) == "RIFF" {
					fields["_wav"] = "ok"
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// tone returns a 440 Hz sine of the given length at 44.1 kHz with RMS ≈ 0.35.
func tone(d time.Duration) audio.Buffer {
	const rate = 44100
	n := int(d.Seconds() * rate)
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	return audio.Buffer{Samples: s, SampleRate: rate}
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithSampleRate(16000),
		whisper.WithSilenceThreshold(0.02),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_WordTimestamps(t *testing.T) {
	t.Parallel()

	body := map[string]any{
		"text": " Ninety nine problems",
		"segments": []map[string]any{{
			"text":  " Ninety nine problems",
			"start": 0.0,
			"end":   1.5,
			"words": []map[string]any{
				{"word": " Ninety", "start": 0.0, "end": 0.5, "probability": 0.9},
				{"word": " nine", "start": 0.5, "end": 0.8, "probability": 0.8},
				{"word": " problems", "start": 0.8, "end": 1.5, "probability": 0.95},
				{"word": ".", "start": 1.5, "end": 1.5, "probability": 0.5},
			},
		}},
	}
	fields := map[string]string{}
	srv := newMockServer(t, body, nil, fields)

	p, _ := whisper.New(srv.URL, whisper.WithModel("base.en"))
	words, err := p.Transcribe(context.Background(), tone(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(words) != 3 {
		t.Fatalf("got %d words, want 3: %+v", len(words), words)
	}
	if words[0].Text != "Ninety" || words[2].Text != "problems" {
		t.Errorf("unexpected words: %+v", words)
	}
	if words[1].Start != 500*time.Millisecond || words[1].End != 800*time.Millisecond {
		t.Errorf("word timing: got %v-%v", words[1].Start, words[1].End)
	}
	if words[2].Confidence != 0.95 {
		t.Errorf("confidence: got %v", words[2].Confidence)
	}

	for k, want := range map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"language":        "en",
		"model":           "base.en",
		"_wav":            "ok",
	} {
		if fields[k] != want {
			t.Errorf("field %s: got %q, want %q", k, fields[k], want)
		}
	}
}

func TestTranscribe_SegmentOnlyResponse_SpreadsWords(t *testing.T) {
	t.Parallel()

	body := map[string]any{
		"segments": []map[string]any{{"text": " riding the city", "start": 0.0, "end": 1.2}},
	}
	srv := newMockServer(t, body, nil, nil)

	p, _ := whisper.New(srv.URL)
	words, err := p.Transcribe(context.Background(), tone(time.Second))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(words) != 3 {
		t.Fatalf("got %d words, want 3", len(words))
	}
	if words[1].Start != 400*time.Millisecond || words[2].End != 1200*time.Millisecond {
		t.Errorf("spread timing: %+v", words)
	}
}

func TestTranscribe_Silence_SkipsServer(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, map[string]any{"text": "unexpected"}, &calls, nil)

	p, _ := whisper.New(srv.URL)
	words, err := p.Transcribe(context.Background(), audio.Buffer{Samples: make([]float32, 16000), SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(words) != 0 {
		t.Errorf("expected no words for silence, got %v", words)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times for silence, want 0", calls.Load())
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), tone(200*time.Millisecond)); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, map[string]any{}, &calls, nil)

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, tone(200*time.Millisecond)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if calls.Load() != 0 {
		t.Error("server must not be contacted after cancellation")
	}
}
