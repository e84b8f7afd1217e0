// Package pipeline wires the rhythm engine end to end.
//
// One block flows through Analyze (transcribe, segment, annotate, align) and
// Generate (template, generate, validate, retry). RunTrack cuts a long take
// into phrase-sized chunks and processes them on a bounded worker pool, each
// with its own deadline, so a slow or failing block never affects its
// siblings.
//
// A Pipeline holds only caller-supplied handles and read-only configuration;
// it is safe for concurrent use.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/cadence/internal/align"
	"github.com/MrWong99/cadence/internal/gatekeeper"
	"github.com/MrWong99/cadence/internal/generate"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/internal/onset"
	"github.com/MrWong99/cadence/internal/prompt"
	"github.com/MrWong99/cadence/internal/prosody"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/lexicon"
	"github.com/MrWong99/cadence/pkg/provider/stt"
	"github.com/MrWong99/cadence/pkg/types"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCandidates       = 5
	defaultMaxRetries       = 1
	maxRetriesCap           = 3
	defaultMaxBlockDuration = 8 * time.Second
	defaultWorkers          = 4
	defaultBlockTimeout     = 2 * time.Minute
	defaultChunkPadding     = 200 * time.Millisecond
)

// Block status values recorded on the cadence.blocks counter.
const (
	StatusMatched   = "matched"
	StatusUnmatched = "unmatched"
	StatusFailed    = "failed"
)

// Config holds the tunables of a Pipeline. Zero values take defaults.
type Config struct {
	// Candidates is the number of lines requested per generator call.
	Candidates int

	// MaxRetries is the number of extra generator calls made when no
	// candidate of the previous call fits. Zero means the default of 1,
	// a negative value disables retries. Values above 3 are capped.
	MaxRetries int

	// GenerateTimeout bounds one generator call. Zero leaves only the block
	// deadline in effect.
	GenerateTimeout time.Duration

	// MaxBlockDuration caps the length of one chunk in RunTrack.
	MaxBlockDuration time.Duration

	// ChunkPadding is the silence kept around each chunk in RunTrack so the
	// segmenter sees a lead-in before the first attack.
	ChunkPadding time.Duration

	// Workers bounds the number of blocks processed concurrently.
	Workers int

	// BlockTimeout bounds the processing of one block in RunTrack.
	BlockTimeout time.Duration

	Segmenter onset.Config
	Prosody   prosody.Config
	Align     align.Config
}

// WithDefaults returns c with zero fields replaced by defaults and MaxRetries
// clamped to [0, 3].
func (c Config) WithDefaults() Config {
	if c.Candidates <= 0 {
		c.Candidates = defaultCandidates
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	case c.MaxRetries > maxRetriesCap:
		c.MaxRetries = maxRetriesCap
	}
	if c.MaxBlockDuration <= 0 {
		c.MaxBlockDuration = defaultMaxBlockDuration
	}
	if c.ChunkPadding <= 0 {
		c.ChunkPadding = defaultChunkPadding
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaultBlockTimeout
	}
	return c
}

// Deps are the collaborators of a Pipeline. Lexicon and Generator are
// required; everything else has a usable default.
type Deps struct {
	// Transcriber supplies word timings for alignment and the syllable hint
	// for segmentation. Nil labels every segment from audio alone.
	Transcriber     stt.Transcriber
	TranscriberName string

	Lexicon lexicon.Lexicon

	Generator     generate.Generator
	GeneratorName string

	// Templater defaults to [prompt.Default].
	Templater prompt.Templater

	SegmenterOptions []onset.Option

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline orchestrates analysis, generation and validation.
type Pipeline struct {
	cfg Config

	transcriber     stt.Transcriber
	transcriberName string
	generator       generate.Generator
	generatorName   string
	templater       prompt.Templater

	segmenter *onset.Segmenter
	annotator *prosody.Annotator
	aligner   *align.Aligner
	gate      *gatekeeper.Gatekeeper

	metrics *observe.Metrics
	log     *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Lexicon == nil {
		return nil, errors.New("pipeline: lexicon is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	cfg = cfg.WithDefaults()

	p := &Pipeline{
		cfg:             cfg,
		transcriber:     deps.Transcriber,
		transcriberName: deps.TranscriberName,
		generator:       deps.Generator,
		generatorName:   deps.GeneratorName,
		templater:       deps.Templater,
		metrics:         deps.Metrics,
		log:             deps.Logger,
	}
	if p.transcriberName == "" {
		p.transcriberName = "transcriber"
	}
	if p.generatorName == "" {
		p.generatorName = "generator"
	}
	if p.templater == nil {
		p.templater = prompt.Default()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.segmenter = onset.New(cfg.Segmenter, deps.SegmenterOptions...)
	p.annotator = prosody.New(cfg.Prosody)
	p.aligner = align.New(deps.Lexicon, cfg.Align, align.WithLogger(p.log))
	p.gate = gatekeeper.New(deps.Lexicon)
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Analyze turns buf into a Block. Transcription failures are logged and
// tolerated; the block is then labelled from audio alone. Only an unusable
// buffer or a done context is an error.
func (p *Pipeline) Analyze(ctx context.Context, id int, buf audio.Buffer) (types.Block, error) {
	if buf.SampleRate <= 0 && buf.Len() > 0 {
		return types.Block{}, fmt.Errorf("pipeline: analyze: %w: sample rate %d", audio.ErrUnreadable, buf.SampleRate)
	}
	ctx, span := observe.StartBlockSpan(ctx, "analyze", id)
	defer span.End()
	log := p.logger(ctx, id)

	words, err := p.transcribe(ctx, buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.Block{}, fmt.Errorf("pipeline: analyze: %w", ctxErr)
		}
		log.Warn("transcription failed, continuing without words", "err", err)
	}

	expected := p.aligner.ExpectedSyllables(ctx, words)

	start := time.Now()
	seg := p.segmenter.Segment(buf, onset.Hint{ExpectedSyllables: expected})
	p.metrics.RecordStage(ctx, observe.StageSegment, time.Since(start))
	p.metrics.RecordOnsetStrategy(ctx, seg.Strategy)
	log.Debug("segmented",
		"strategy", seg.Strategy,
		"multiplier", seg.Multiplier,
		"onsets", seg.Onsets,
		"segments", len(seg.Segments),
		"expected", expected,
	)

	start = time.Now()
	segs := p.annotator.Annotate(buf, seg.Segments)
	p.metrics.RecordStage(ctx, observe.StageAnnotate, time.Since(start))

	start = time.Now()
	segs = p.aligner.Align(ctx, buf, segs, words)
	p.metrics.RecordStage(ctx, observe.StageAlign, time.Since(start))

	block := types.Block{ID: id, Length: buf.Duration()}.WithSegments(segs)
	block.TempoBPM = onset.EstimateTempo(block.Segments)
	log.Info("block analysed",
		"syllables", block.SyllableTarget(),
		"pattern", block.StressPattern(),
		"tempo_bpm", block.TempoBPM,
	)
	return block, nil
}

func (p *Pipeline) transcribe(ctx context.Context, buf audio.Buffer) ([]types.TranscribedWord, error) {
	if p.transcriber == nil {
		return nil, nil
	}
	start := time.Now()
	words, err := p.transcriber.Transcribe(ctx, buf)
	p.metrics.ObserveProvider(ctx, p.transcriberName, "transcriber", start, err)
	p.metrics.RecordStage(ctx, observe.StageTranscribe, time.Since(start))
	return words, err
}

// Generate requests candidate lines for block and validates them. When no
// candidate fits, up to MaxRetries further calls are made with feedback
// about the rejected lines; their candidates are appended. A generator or
// templating failure is recorded in Err and ends the attempts, keeping the
// candidates gathered so far.
func (p *Pipeline) Generate(ctx context.Context, block types.Block) types.GenerationResult {
	ctx, span := observe.StartBlockSpan(ctx, "generate", block.ID)
	defer span.End()
	log := p.logger(ctx, block.ID)

	res := newResult(block)
	if block.SyllableTarget() == 0 {
		res.Err = "no syllable slots detected"
		return res
	}

	var fb *prompt.Feedback
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		req, err := p.templater.Template(block, p.cfg.Candidates, fb)
		if err != nil {
			res.Err = fmt.Sprintf("template: %v", err)
			break
		}
		res.Attempts++

		cands, err := p.generate(ctx, req)
		if err != nil {
			res.Err = err.Error()
			log.Warn("generation failed", "attempt", res.Attempts, "err", err)
			break
		}

		start := time.Now()
		vals := p.gate.ValidateAll(ctx, cands, block)
		p.metrics.RecordStage(ctx, observe.StageValidate, time.Since(start))

		res.Candidates = append(res.Candidates, cands...)
		res.Validations = append(res.Validations, vals...)

		valid := countValid(vals)
		p.metrics.RecordCandidates(ctx, valid, len(vals)-valid)
		log.Debug("candidates validated", "attempt", res.Attempts, "candidates", len(cands), "valid", valid)
		if valid > 0 {
			break
		}
		fb = &prompt.Feedback{Attempt: res.Attempts, Rejected: vals}
	}

	rank(&res)
	var best float64
	if res.Best >= 0 {
		best = res.Validations[res.Best].Score
	}
	p.metrics.RecordGeneration(ctx, res.Attempts, best, res.Best >= 0)
	return res
}

func (p *Pipeline) generate(ctx context.Context, req generate.Request) ([]string, error) {
	if p.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.GenerateTimeout)
		defer cancel()
	}
	start := time.Now()
	cands, err := p.generator.Generate(ctx, req)
	p.metrics.ObserveProvider(ctx, p.generatorName, "llm", start, err)
	p.metrics.RecordStage(ctx, observe.StageGenerate, time.Since(start))
	return cands, err
}

// Run analyses buf and generates lines for the resulting block. The returned
// error is non-nil only when analysis fails; the result then carries the
// reason in Err.
func (p *Pipeline) Run(ctx context.Context, id int, buf audio.Buffer) (types.GenerationResult, error) {
	p.metrics.ActiveBlocks.Add(ctx, 1)
	defer p.metrics.ActiveBlocks.Add(ctx, -1)

	block, err := p.Analyze(ctx, id, buf)
	if err != nil {
		res := newResult(types.Block{ID: id})
		res.Err = err.Error()
		p.metrics.RecordBlock(ctx, StatusFailed)
		return res, err
	}
	res := p.Generate(ctx, block)
	p.metrics.RecordBlock(ctx, status(res))
	return res, nil
}

// Revalidate scores candidates against block without calling the generator.
// It serves manually corrected blocks.
func (p *Pipeline) Revalidate(ctx context.Context, block types.Block, candidates []string) types.GenerationResult {
	res := newResult(block)
	res.Candidates = append(res.Candidates, candidates...)
	res.Validations = append(res.Validations, p.gate.ValidateAll(ctx, candidates, block)...)
	rank(&res)
	return res
}

// RunTrack splits buf at silences into chunks of at most MaxBlockDuration and
// runs each as its own block. Blocks run on at most Workers goroutines, each
// under BlockTimeout. Results are returned in chunk order; a failed block
// carries its reason in Err.
func (p *Pipeline) RunTrack(ctx context.Context, buf audio.Buffer) []types.GenerationResult {
	chunks := audio.Split(buf, audio.ChunkOptions{
		MaxDuration: p.cfg.MaxBlockDuration,
		Padding:     p.cfg.ChunkPadding,
	})
	p.log.Info("track split", "blocks", len(chunks), "duration", buf.Duration())

	results := make([]types.GenerationResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, c := range chunks {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, p.cfg.BlockTimeout)
			defer cancel()

			res, _ := p.Run(bctx, i, c.Buffer)
			if res.Err == "" && errors.Is(bctx.Err(), context.DeadlineExceeded) {
				res.Err = fmt.Sprintf("block timed out after %s", p.cfg.BlockTimeout)
			}
			res.Block.Offset = c.Offset
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) logger(ctx context.Context, blockID int) *slog.Logger {
	l := p.log.With("block_id", blockID)
	if rid := observe.RunID(ctx); rid != "" {
		l = l.With("run_id", rid)
	}
	if cid := observe.CorrelationID(ctx); cid != "" {
		l = l.With("trace_id", cid)
	}
	return l
}

func newResult(block types.Block) types.GenerationResult {
	return types.GenerationResult{
		BlockID:     block.ID,
		Block:       block,
		Candidates:  []string{},
		Validations: []types.ValidationResult{},
		Ranked:      []int{},
		Best:        -1,
		Meta:        types.MetaFor(block),
	}
}

// rank fills Ranked and Best from the validations.
func rank(res *types.GenerationResult) {
	res.Ranked = gatekeeper.Rank(res.Validations)
	if res.Ranked == nil {
		res.Ranked = []int{}
	}
	res.Best = -1
	if len(res.Ranked) > 0 {
		res.Best = res.Ranked[0]
	}
}

func status(res types.GenerationResult) string {
	switch {
	case res.Best >= 0:
		return StatusMatched
	case res.Err != "":
		return StatusFailed
	default:
		return StatusUnmatched
	}
}

func countValid(vals []types.ValidationResult) int {
	var n int
	for _, v := range vals {
		if v.IsValid {
			n++
		}
	}
	return n
}
