package source

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/MrWong99/beepwise/pkg/audio"
)

// FileOption configures a [File] source.
type FileOption func(*File)

// WithRealtime paces chunks to wall-clock time, as a live call would
// deliver them.
func WithRealtime(on bool) FileOption {
	return func(f *File) {
		f.realtime = on
	}
}

// WithFramesPerChunk sets how many frames each Next call returns.
// Default: 1.
func WithFramesPerChunk(n int) FileOption {
	return func(f *File) {
		if n > 0 {
			f.framesPerChunk = n
		}
	}
}

// File plays a decoded clip as PCM chunks in the pipeline format.
type File struct {
	pcm            []byte
	format         audio.Format
	realtime       bool
	framesPerChunk int

	pos     int
	started time.Time
	now     func() time.Time
	closed  atomic.Bool
}

// OpenFile decodes the WAV file at path and converts it to f.
func OpenFile(path string, f audio.Format, opts ...FileOption) (*File, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	clip, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	return NewClipSource(clip, f, opts...), nil
}

// NewClipSource plays clip, resampled to f.SampleRate.
func NewClipSource(clip Clip, f audio.Format, opts ...FileOption) *File {
	src := &File{
		pcm:            audio.EncodePCM16(clip.Resampled(f.SampleRate).Samples),
		format:         f,
		framesPerChunk: 1,
		now:            time.Now,
	}
	for _, o := range opts {
		o(src)
	}
	return src
}

// Len returns the total number of PCM bytes the source will deliver.
func (f *File) Len() int { return len(f.pcm) }

// Next implements [Source].
func (f *File) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closed.Load() || f.pos >= len(f.pcm) {
		return nil, io.EOF
	}
	if f.realtime {
		if err := f.pace(ctx); err != nil {
			return nil, err
		}
	}
	end := min(f.pos+f.format.FrameBytes()*f.framesPerChunk, len(f.pcm))
	chunk := f.pcm[f.pos:end]
	f.pos = end
	return chunk, nil
}

// pace blocks until the audio already delivered has played out.
func (f *File) pace(ctx context.Context) error {
	if f.started.IsZero() {
		f.started = f.now()
		return nil
	}
	played := time.Duration(float64(f.pos/audio.BytesPerSample) / float64(f.format.SampleRate) * float64(time.Second))
	wait := f.started.Add(played).Sub(f.now())
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("source: file: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// Close implements [Source]. The clip is held in memory, so Close only
// ends the stream.
func (f *File) Close() error {
	f.closed.Store(true)
	return nil
}
