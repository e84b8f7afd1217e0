package generate_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/cadence/internal/generate"
	"github.com/MrWong99/cadence/pkg/provider/llm"
	"github.com/MrWong99/cadence/pkg/provider/llm/mock"
)

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{
			name: "clean json",
			in:   `{"candidates": ["Riding through the night", "Breaking all the rules"]}`,
			want: []string{"Riding through the night", "Breaking all the rules"},
		},
		{
			name: "chatty with fences",
			in: "Sure! Here are 2 variations:\n\n```json\n{\n  \"candidates\": [\n    \"Living on the edge\",\n    \"Running from the past\"\n  ]\n}\n```\n\nHope these work for you!",
			want: []string{"Living on the edge", "Running from the past"},
		},
		{
			name: "trailing commas",
			in:   `{"candidates": ["Chasing down my dreams", "Sky is not the limit", ],}`,
			want: []string{"Chasing down my dreams", "Sky is not the limit"},
		},
		{
			name: "bare array",
			in:   `Lines: ["Money on my mind", "Never looking back"]`,
			want: []string{"Money on my mind", "Never looking back"},
		},
		{
			name: "cut off mid array",
			in:   `{"candidates": ["Riding through the night", "Breaking all the ru`,
			want: []string{"Riding through the night"},
		},
		{
			name: "numbered lines",
			in:   "Here you go:\n1. Riding through the city\n2. \"Never looking back now\"\n- Living for the moment\n\nok",
			want: []string{"Riding through the city", "Never looking back now", "Living for the moment"},
		},
		{
			name: "dedupe and whitespace",
			in:   `{"candidates": ["  Sky  is high ", "sky is high", "", "Fly away"]}`,
			want: []string{"Sky is high", "Fly away"},
		},
		{
			name:  "capped",
			in:    `{"candidates": ["one line", "two line", "red line"]}`,
			limit: 2,
			want:  []string{"one line", "two line"},
		},
		{
			name: "empty candidates",
			in:   `{"candidates": []}`,
			want: []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := generate.ParseCandidates(tc.in, tc.limit)
			if !slices.Equal(got, tc.want) {
				t.Errorf("ParseCandidates = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLLM_Generate(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []string{mock.Candidates("a b c d", "e f g h", "i j k l")}}
	g := generate.NewLLM(p, generate.WithTemperature(0.3), generate.WithMaxTokens(100))

	got, err := g.Generate(context.Background(), generate.Request{System: "sys", User: "usr", Count: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(got, []string{"a b c d", "e f g h"}) {
		t.Errorf("got %q", got)
	}

	if p.CallCount() != 1 {
		t.Fatalf("expected one batched call, got %d", p.CallCount())
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != "sys" || len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != "usr" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Temperature != 0.3 || req.MaxTokens != 100 || req.Seed != 0 || !req.JSON {
		t.Errorf("unexpected sampling settings: %+v", req)
	}
}

func TestLLM_Generate_Truncated(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content:   `{"candidates":["Sky is not the limit","Never looking ba`,
		Truncated: true,
	}}
	got, err := generate.NewLLM(p, generate.WithSeed(42)).Generate(context.Background(), generate.Request{Count: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(got, []string{"Sky is not the limit"}) {
		t.Errorf("got %q", got)
	}
	if p.CompleteCalls[0].Req.Seed != 42 {
		t.Errorf("seed = %d, want 42", p.CompleteCalls[0].Req.Seed)
	}
}

func TestLLM_Generate_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	_, err := generate.NewLLM(&mock.Provider{CompleteErr: boom}).Generate(context.Background(), generate.Request{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}

	_, err = generate.NewLLM(&mock.Provider{CompleteResponse: &llm.CompletionResponse{}}).Generate(context.Background(), generate.Request{})
	if !errors.Is(err, generate.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestCanned(t *testing.T) {
	t.Parallel()

	got, err := generate.NewLLM(mock.NewCanned()).Generate(context.Background(), generate.Request{Count: 5})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(got, mock.CannedLines) {
		t.Errorf("got %q", got)
	}
}
