package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnreadable is returned when an input cannot be decoded into samples. It
// is fatal for the run: no Block is created.
var ErrUnreadable = errors.New("audio: unreadable input")

const bitsPerSample = 16

// Load opens and decodes the WAV file at path.
func Load(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a PCM WAV stream and returns a mono buffer at the file's native
// sample rate. Multi-channel input is down-mixed by averaging.
func Decode(r io.ReadSeeker) (Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: not a valid wav file", ErrUnreadable)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: read pcm: %w", ErrUnreadable, err)
	}
	if pcm.Format == nil || pcm.Format.SampleRate <= 0 || pcm.Format.NumChannels <= 0 {
		return Buffer{}, fmt.Errorf("%w: missing format", ErrUnreadable)
	}
	return fromIntBuffer(pcm), nil
}

// fromIntBuffer converts decoded PCM to mono floats in [-1, 1].
// AsFloat32Buffer already scales by the source bit depth.
func fromIntBuffer(pcm *goaudio.IntBuffer) Buffer {
	if pcm.SourceBitDepth <= 0 {
		pcm.SourceBitDepth = bitsPerSample
	}
	floats := pcm.AsFloat32Buffer()
	return Buffer{
		Samples:    Downmix(floats.Data, pcm.Format.NumChannels),
		SampleRate: pcm.Format.SampleRate,
	}
}

// EncodeWAV wraps the buffer as 16-bit mono PCM in a RIFF/WAV container,
// suitable for multipart uploads.
func EncodeWAV(b Buffer) []byte {
	pcm := PCM16(b.Samples)
	const channels = 1
	byteRate := b.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
