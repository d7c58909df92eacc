// Package source delivers call audio to the detector as raw 16-bit
// little-endian mono PCM in the pipeline's sample rate.
//
// Three transports are provided: [HTTP] reads a chunked audio/L16 response,
// [WebSocket] reads binary messages and [File] decodes a WAV file. Chunk
// sizes are arbitrary; the caller reassembles frames with audio.Framer.
package source

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the remote end reports the stream does not
// exist.
var ErrNotFound = errors.New("source: stream not found")

// Source yields PCM chunks until the stream ends.
//
// A Source is consumed by one goroutine. Close may be called concurrently
// with Next to abort a blocked read.
type Source interface {
	// Next returns the next non-empty chunk. It returns io.EOF once the
	// stream has ended cleanly.
	Next(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection or file.
	Close() error
}

var (
	_ Source = (*HTTP)(nil)
	_ Source = (*WebSocket)(nil)
	_ Source = (*File)(nil)
)
