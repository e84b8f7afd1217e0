// Package audio holds the immutable mono sample buffer analysed by the
// pipeline, together with decoding, format conversion and track chunking.
package audio

import (
	"math"
	"time"
)

// Buffer is an immutable mono signal. Samples are normalised to [-1, 1].
//
// A Buffer is owned by the run that loaded it. Slice returns views that share
// the backing array; no stage writes to Samples.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Len returns the number of samples.
func (b Buffer) Len() int { return len(b.Samples) }

// Index converts a time offset to a sample index clamped to [0, Len].
func (b Buffer) Index(t time.Duration) int {
	i := int(math.Round(t.Seconds() * float64(b.SampleRate)))
	return min(max(i, 0), len(b.Samples))
}

// Time converts a sample index to a time offset.
func (b Buffer) Time(i int) time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(i) * int64(time.Second) / int64(b.SampleRate))
}

// Slice returns the samples in [start, end) as a Buffer view.
func (b Buffer) Slice(start, end time.Duration) Buffer {
	i, j := b.Index(start), b.Index(end)
	if j < i {
		j = i
	}
	return Buffer{Samples: b.Samples[i:j:j], SampleRate: b.SampleRate}
}

// Peak returns the maximum absolute sample value.
func (b Buffer) Peak() float64 {
	var p float64
	for _, s := range b.Samples {
		p = max(p, math.Abs(float64(s)))
	}
	return p
}

// RMS returns the root-mean-square level of samples. Returns 0 for an empty
// slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
