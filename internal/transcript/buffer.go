// Package transcript keeps the running text of a greeting as the STT
// provider recognises it.
//
// A [Buffer] holds the committed finals in arrival order plus the most recent
// partial. Only the latest partial is kept: each interim result supersedes
// the previous one, and a final clears it. A partial that starts before the
// end of the latest final is stale and dropped. [Feed] pumps a live STT session
// into a Buffer.
package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/beepwise/pkg/provider/stt"
)

// Buffer is a concurrency-safe transcript snapshot. The zero value is ready
// to use.
type Buffer struct {
	mu        sync.RWMutex
	finals    []string
	partial   string
	committed time.Duration // end offset of the latest timed final
	version   uint64
	changed   chan struct{}
}

// Add applies one transcript. Empty texts are ignored.
func (b *Buffer) Add(t stt.Transcript) {
	text := strings.TrimSpace(t.Text)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case t.IsFinal:
		hadPartial := b.partial != ""
		b.partial = ""
		if end := t.Start + t.Duration; end > b.committed {
			b.committed = end
		}
		if text == "" {
			if !hadPartial {
				return
			}
			break
		}
		b.finals = append(b.finals, text)
	case text == "" || text == b.partial:
		return
	case t.Start < b.committed:
		return
	default:
		b.partial = text
	}
	b.version++
	if b.changed != nil {
		close(b.changed)
		b.changed = nil
	}
}

// Snapshot returns the finals and the current partial joined by spaces.
func (b *Buffer) Snapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	parts := b.finals
	if b.partial != "" {
		parts = append(parts[:len(parts):len(parts)], b.partial)
	}
	return strings.Join(parts, " ")
}

// Version increments every time the snapshot changes.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Changed returns a channel that is closed on the next change after the call.
func (b *Buffer) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.changed == nil {
		b.changed = make(chan struct{})
	}
	return b.changed
}

// Feed copies transcripts from sess into buf until both of the session's
// channels are closed or ctx is done. It returns ctx.Err() on cancellation
// and nil when the session ends.
func Feed(ctx context.Context, sess stt.SessionHandle, buf *Buffer) error {
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			buf.Add(t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			buf.Add(t)
		}
	}
	return nil
}
