package session

import (
	"fmt"
	"strings"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/greeting"
)

// Decision reasons printed in the compliance summary.
const (
	ReasonBeep         = "Beep detected"
	ReasonSilence      = "Sustained silence (no beep)"
	ReasonUndetermined = "No beep or sustained silence before end of stream"
)

// Result is the outcome of one [Runner.Run].
type Result struct {
	Call Call
	Mode greeting.Mode

	// Decision is valid only when Determined is true.
	Decision   greeting.Decision
	Determined bool

	// StartAt is the recommended recording start in stream seconds: the
	// decision timestamp, or the fallback offset when undetermined.
	StartAt float64

	// Reason explains the outcome in words.
	Reason string

	// Transcript is the final snapshot. Empty in baseline mode.
	Transcript string

	// Frames is the number of frames processed and Duration the stream time
	// they cover, in seconds.
	Frames   int
	Duration float64

	CorrelationID string
}

// Outcome classifies the result for the audit log.
func (r Result) Outcome() audit.Outcome {
	if !r.Determined {
		return audit.OutcomeUndetermined
	}
	if r.Decision.Kind == greeting.KindBeep {
		return audit.OutcomeBeep
	}
	return audit.OutcomeSilence
}

func (r Result) reason(judgeLabel string) string {
	switch {
	case !r.Determined:
		return ReasonUndetermined
	case r.Decision.Kind == greeting.KindBeep:
		return ReasonBeep
	case r.Decision.Gated:
		return fmt.Sprintf("Sustained silence + %s confirmation", judgeLabel)
	default:
		return ReasonSilence
	}
}

// Entry converts r to an audit entry.
func (r Result) Entry() audit.Entry {
	return audit.Entry{
		CallID:        r.Call.ID,
		Source:        r.Call.Source,
		Mode:          string(r.Mode),
		Outcome:       r.Outcome(),
		Reason:        r.Reason,
		StartAt:       r.StartAt,
		DecidedAt:     r.Decision.DecidedAt,
		Silence:       r.Decision.Silence,
		Gated:         r.Decision.Gated,
		Transcript:    r.Transcript,
		CorrelationID: r.CorrelationID,
	}
}

// Summary renders the compliance block printed at the end of a call.
func (r Result) Summary() string {
	var b strings.Builder
	b.WriteString("╔═════════════════════════════════════════════\n")
	b.WriteString("║  Compliance decision\n")
	b.WriteString("╠═════════════════════════════════════════════\n")
	fmt.Fprintf(&b, "║  Call:       %s\n", r.Call.ID)
	fmt.Fprintf(&b, "║  Mode:       %s\n", r.Mode)
	fmt.Fprintf(&b, "║  Reason:     %s\n", r.Reason)
	if r.Determined {
		fmt.Fprintf(&b, "║  Start at:   %.2fs (decided at %.2fs)\n", r.StartAt, r.Decision.DecidedAt)
		if r.Decision.Kind == greeting.KindSilence {
			fmt.Fprintf(&b, "║  Silence:    %.2fs\n", r.Decision.Silence)
		}
	} else {
		fmt.Fprintf(&b, "║  Start at:   %.2fs (fallback offset)\n", r.StartAt)
	}
	fmt.Fprintf(&b, "║  Analysed:   %.2fs in %d frames\n", r.Duration, r.Frames)
	if r.Transcript != "" {
		fmt.Fprintf(&b, "║  Transcript: %q\n", r.Transcript)
	}
	b.WriteString("╚═════════════════════════════════════════════\n")
	return b.String()
}
