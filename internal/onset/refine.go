package onset

import (
	"time"

	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/types"
)

// breathBlock is the RMS block size used to measure segment loudness.
const breathBlock = 10 * time.Millisecond

// span is a half-open time range [start, end).
type span struct{ start, end time.Duration }

func (s span) length() time.Duration { return s.end - s.start }

// spansFromOnsets turns ascending onsets into back-to-back spans. The last
// span runs to the end of the buffer, or for tail when tail is positive.
func spansFromOnsets(onsets []time.Duration, length, tail time.Duration) []span {
	var out []span
	for i, t := range onsets {
		if t >= length {
			break
		}
		end := length
		if i+1 < len(onsets) {
			end = min(onsets[i+1], length)
		} else if tail > 0 {
			end = min(t+tail, length)
		}
		if end > t {
			out = append(out, span{t, end})
		}
	}
	return out
}

// splitLong splits every span longer than MaxSegment at its qualifying
// energy valleys.
func splitLong(spans []span, f *Features, cfg Config) []span {
	var out []span
	for _, s := range spans {
		if s.length() <= cfg.MaxSegment {
			out = append(out, s)
			continue
		}
		out = append(out, splitAtValleys(s, f, cfg)...)
	}
	return out
}

// splitAtValleys recursively cuts s at its deepest valley lying at least
// ValleyDepth below the highest energy on either side. Both parts must stay
// at least MinSegment long. A span without such a valley is one sustained
// sound and is returned whole.
func splitAtValleys(s span, f *Features, cfg Config) []span {
	if s.length() < 2*cfg.MinSegment {
		return []span{s}
	}
	env := f.Energy
	a, b := f.FrameAt(s.start), f.FrameAt(s.end)
	margin := f.Frames(cfg.MinSegment)

	best, bestRatio := -1, 1-cfg.ValleyDepth
	for i := a + margin; i < b-margin; i++ {
		if i <= 0 || i+1 >= len(env) {
			continue
		}
		v := env[i]
		if v > env[i-1] || v > env[i+1] {
			continue
		}
		left, right := maxOf(env[a:i]), maxOf(env[i+1:b])
		peak := min(left, right)
		if peak <= 0 {
			continue
		}
		if r := v / peak; r <= bestRatio {
			best, bestRatio = i, r
		}
	}
	if best < 0 {
		return []span{s}
	}
	cut := f.FrameTime(best)
	if cut-s.start < cfg.MinSegment || s.end-cut < cfg.MinSegment {
		return []span{s}
	}
	return append(
		splitAtValleys(span{s.start, cut}, f, cfg),
		splitAtValleys(span{cut, s.end}, f, cfg)...,
	)
}

// mergeShort folds spans shorter than MinSegment into the following span. A
// short final span is folded into its predecessor.
func mergeShort(spans []span, minLen time.Duration) []span {
	var out []span
	pending := time.Duration(-1)
	for _, s := range spans {
		if pending >= 0 {
			s.start = pending
			pending = -1
		}
		if s.length() < minLen {
			pending = s.start
			continue
		}
		out = append(out, s)
	}
	if pending >= 0 && len(spans) > 0 {
		last := spans[len(spans)-1]
		switch {
		case len(out) > 0 && out[len(out)-1].end == pending:
			out[len(out)-1].end = last.end
		default:
			out = append(out, span{pending, last.end})
		}
	}
	return out
}

// dropBreaths removes spans that are both shorter than BreathMaxDuration and
// quieter than BreathEnergyRatio of the loudest block in buf. Either condition
// alone keeps the span.
func dropBreaths(buf audio.Buffer, spans []span, cfg Config) []span {
	fileMax := peakBlockRMS(buf)
	if fileMax == 0 {
		return spans
	}
	var out []span
	for _, s := range spans {
		short := s.length() < cfg.BreathMaxDuration
		quiet := peakBlockRMS(buf.Slice(s.start, s.end)) < cfg.BreathEnergyRatio*fileMax
		if short && quiet {
			continue
		}
		out = append(out, s)
	}
	return out
}

// peakBlockRMS returns the highest RMS over consecutive breathBlock windows.
func peakBlockRMS(buf audio.Buffer) float64 {
	n := max(buf.Index(breathBlock), 1)
	var peak float64
	for i := 0; i < buf.Len(); i += n {
		peak = max(peak, audio.RMS(buf.Samples[i:min(i+n, buf.Len())]))
	}
	return peak
}

func toSegments(spans []span) []types.Segment {
	out := make([]types.Segment, len(spans))
	for i, s := range spans {
		out[i] = types.Segment{Index: i, Start: s.start, Duration: s.length()}
	}
	return out
}

func maxOf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = max(m, x)
	}
	return m
}
