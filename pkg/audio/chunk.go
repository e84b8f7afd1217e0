package audio

import "time"

const (
	defaultChunkFrame      = 20 * time.Millisecond
	defaultMinSilence      = 300 * time.Millisecond
	defaultSilenceRatio    = 0.05
	defaultMaxChunkLength  = 8 * time.Second
	minimumChunkFrameCount = 1
)

// ChunkOptions controls how a long track is cut into phrase-sized windows.
type ChunkOptions struct {
	// MaxDuration caps the length of a chunk. Phrases longer than this are
	// cut at their quietest frame.
	MaxDuration time.Duration

	// MinSilence is the shortest gap treated as a phrase boundary.
	MinSilence time.Duration

	// SilenceRatio is the frame RMS, relative to the loudest frame, below
	// which a frame counts as silent.
	SilenceRatio float64

	// Padding keeps up to this much of the surrounding silence on each side
	// of a phrase so the first attack has a lead-in. Padding never crosses
	// into a neighbouring phrase. Zero cuts tight.
	Padding time.Duration
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.MaxDuration <= 0 {
		o.MaxDuration = defaultMaxChunkLength
	}
	if o.MinSilence <= 0 {
		o.MinSilence = defaultMinSilence
	}
	if o.SilenceRatio <= 0 {
		o.SilenceRatio = defaultSilenceRatio
	}
	return o
}

// Chunk is one phrase of a longer track.
type Chunk struct {
	Offset time.Duration
	Buffer Buffer
}

// Split cuts b at silent gaps into chunks no longer than opts.MaxDuration.
// Fully silent stretches are dropped. A buffer with no audible frames yields
// no chunks.
func Split(b Buffer, opts ChunkOptions) []Chunk {
	opts = opts.withDefaults()
	frameLen := max(int(defaultChunkFrame.Seconds()*float64(b.SampleRate)), minimumChunkFrameCount)
	if b.SampleRate <= 0 || len(b.Samples) == 0 {
		return nil
	}

	nFrames := (len(b.Samples) + frameLen - 1) / frameLen
	rms := make([]float64, nFrames)
	var peak float64
	for i := range nFrames {
		end := min((i+1)*frameLen, len(b.Samples))
		rms[i] = RMS(b.Samples[i*frameLen : end])
		peak = max(peak, rms[i])
	}
	if peak == 0 {
		return nil
	}
	floor := peak * opts.SilenceRatio
	minSilentFrames := max(int(opts.MinSilence/defaultChunkFrame), 1)
	maxFrames := max(int(opts.MaxDuration/defaultChunkFrame), 1)

	// Phrases are runs of frames separated by at least minSilentFrames of
	// silence.
	type span struct{ from, to int }
	var phrases []span
	start, silent := -1, 0
	for i, v := range rms {
		if v >= floor {
			if start < 0 {
				start = i
			}
			silent = 0
			continue
		}
		if start < 0 {
			continue
		}
		silent++
		if silent >= minSilentFrames {
			phrases = append(phrases, span{start, i - silent + 1})
			start, silent = -1, 0
		}
	}
	if start >= 0 {
		phrases = append(phrases, span{start, nFrames - silent})
	}

	var out []Chunk
	emit := func(from, to int) {
		i, j := from*frameLen, min(to*frameLen, len(b.Samples))
		out = append(out, Chunk{
			Offset: b.Time(i),
			Buffer: Buffer{Samples: b.Samples[i:j:j], SampleRate: b.SampleRate},
		})
	}
	pad := int(opts.Padding / defaultChunkFrame)
	lastEnd := 0
	for k, p := range phrases {
		from := max(p.from-pad, lastEnd)
		next := nFrames
		if k+1 < len(phrases) {
			next = phrases[k+1].from
		}
		p.to = min(p.to+pad, next)
		lastEnd = p.to
		for p.to-from > maxFrames {
			cut := quietestFrame(rms, from+maxFrames/2, from+maxFrames)
			emit(from, cut)
			from = cut
		}
		emit(from, p.to)
	}
	return out
}

// quietestFrame returns the frame index just past the quietest frame in
// [from, to). The result is always greater than from.
func quietestFrame(rms []float64, from, to int) int {
	best := from
	for i := from + 1; i < to; i++ {
		if rms[i] < rms[best] {
			best = i
		}
	}
	return best + 1
}
