// Package audit keeps a record of every greeting-end decision: which call,
// which strategy fired, when recording should start and what had been
// transcribed at that point.
//
// [MemStore] keeps entries in process memory. The postgres sub-package
// persists them to PostgreSQL.
package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned by [Store.Get] when no entry has the given ID.
var ErrNotFound = errors.New("audit: entry not found")

// Outcome is "beep", "silence" or "undetermined".
type Outcome string

const (
	OutcomeBeep         Outcome = "beep"
	OutcomeSilence      Outcome = "silence"
	OutcomeUndetermined Outcome = "undetermined"
)

// Entry is one audited call.
type Entry struct {
	// ID is assigned by the store when empty.
	ID string `json:"id"`

	// CallID identifies the call (e.g. the stream name or a carrier call ID).
	CallID string `json:"call_id"`

	// Source is the URL or path the audio came from.
	Source string `json:"source"`

	// Mode is the orchestrator mode ("baseline" or "augmented").
	Mode string `json:"mode"`

	Outcome Outcome `json:"outcome"`

	// Reason is the human-readable explanation printed in the summary.
	Reason string `json:"reason"`

	// StartAt is the recommended recording start, in stream seconds. For
	// undetermined calls it is the configured fallback offset.
	StartAt float64 `json:"start_at"`

	// DecidedAt is the stream time of the frame that produced the decision.
	DecidedAt float64 `json:"decided_at"`

	// Silence is the accumulated silence for silence decisions, in seconds.
	Silence float64 `json:"silence"`

	// Gated reports that a transcript judge confirmed the decision.
	Gated bool `json:"gated"`

	// Transcript is the snapshot at decision time. Empty in baseline mode.
	Transcript string `json:"transcript,omitempty"`

	// CorrelationID ties the entry to the trace of the call.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RecordedAt is set by the store when zero.
	RecordedAt time.Time `json:"recorded_at"`
}

// ListOptions filters [Store.List]. Zero values match everything.
type ListOptions struct {
	CallID  string
	Outcome Outcome

	// Limit caps the number of entries returned, newest first. Zero means 100.
	Limit int
}

// Store persists audit entries. Implementations must be safe for concurrent
// use.
type Store interface {
	// Record stores e and returns it with ID and RecordedAt filled in.
	Record(ctx context.Context, e Entry) (Entry, error)

	// Get returns the entry with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Entry, error)

	// List returns matching entries, newest first.
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
}

const defaultListLimit = 100

// EffectiveLimit returns the limit List applies for o.
func (o ListOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	return o.Limit
}

// Prepare fills the store-assigned fields of e.
func Prepare(e Entry, now time.Time) (Entry, error) {
	if e.ID == "" {
		id, err := generateID()
		if err != nil {
			return Entry{}, err
		}
		e.ID = id
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = now.UTC()
	}
	return e, nil
}

func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
