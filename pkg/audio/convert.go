package audio

import (
	"encoding/binary"
	"math"
)

// Downmix averages interleaved multi-channel samples into mono. If channels is
// 1 or less the input is returned unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// PCM16 converts float samples to 16-bit signed little-endian PCM, clamping
// to the int16 range.
func PCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// FromPCM16 converts 16-bit signed little-endian PCM with the given channel
// count into mono float samples. A trailing odd byte is ignored.
func FromPCM16(pcm []byte, channels int) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return Downmix(samples, channels)
}

// Resample converts b to dstRate using linear interpolation. If the rates
// already match, b is returned unchanged.
func Resample(b Buffer, dstRate int) Buffer {
	if dstRate <= 0 || b.SampleRate <= 0 || b.SampleRate == dstRate || len(b.Samples) < 2 {
		return b
	}
	src := b.Samples
	dstSamples := int(int64(len(src)) * int64(dstRate) / int64(b.SampleRate))
	out := make([]float32, dstSamples)
	ratio := float64(b.SampleRate) / float64(dstRate)

	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return Buffer{Samples: out, SampleRate: dstRate}
}
