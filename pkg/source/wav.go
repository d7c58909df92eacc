package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/MrWong99/beepwise/pkg/audio"
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag. Floating point and compressed
// WAV files are rejected.
const wavFormatPCM = 1

// ErrUnsupportedWAV is returned for WAV files that are not integer PCM.
var ErrUnsupportedWAV = errors.New("source: unsupported wav file")

// Clip is a decoded, mono-downmixed recording.
type Clip struct {
	// Samples are normalised to [-1, 1].
	Samples []float64

	// SampleRate of Samples in Hz.
	SampleRate int

	// Channels is the channel count of the original file.
	Channels int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Resampled returns c at rate. The original is not modified.
func (c Clip) Resampled(rate int) Clip {
	if rate == c.SampleRate {
		return c
	}
	return Clip{
		Samples:    audio.Resample(c.Samples, c.SampleRate, rate),
		SampleRate: rate,
		Channels:   c.Channels,
	}
}

// LoadWAV decodes the WAV file at path.
func LoadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("source: open %q: %w", path, err)
	}
	defer f.Close()

	clip, err := ReadWAV(f)
	if err != nil {
		return Clip{}, fmt.Errorf("source: %q: %w", path, err)
	}
	return clip, nil
}

// ReadWAV decodes an 8, 16, 24 or 32-bit integer PCM WAV stream and mixes
// all channels down to mono.
func ReadWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return Clip{}, fmt.Errorf("%w: audio format %d is not integer PCM", ErrUnsupportedWAV, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("source: decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return Clip{}, fmt.Errorf("%w: no channels", ErrUnsupportedWAV)
	}
	depth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		depth = buf.SourceBitDepth
	}

	interleaved, err := normalise(buf.Data, depth)
	if err != nil {
		return Clip{}, err
	}
	return Clip{
		Samples:    audio.Downmix(interleaved, channels),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
	}, nil
}

// normalise maps integer samples of the given bit depth to [-1, 1].
// 8-bit WAV samples are unsigned.
func normalise(data []int, depth int) ([]float64, error) {
	out := make([]float64, len(data))
	switch depth {
	case 8:
		for i, v := range data {
			out[i] = float64(v-128) / 128
		}
	case 16, 24, 32:
		scale := float64(int64(1) << (depth - 1))
		for i, v := range data {
			out[i] = float64(v) / scale
		}
	default:
		return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedWAV, depth)
	}
	return out, nil
}
