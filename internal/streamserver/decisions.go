package streamserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/observe"
)

// handleDecisions lists audit entries, newest first. Query parameters:
// call_id, outcome and limit.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.ListOptions{
		CallID:  q.Get("call_id"),
		Outcome: audit.Outcome(q.Get("outcome")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	switch opts.Outcome {
	case "", audit.OutcomeBeep, audit.OutcomeSilence, audit.OutcomeUndetermined:
	default:
		writeError(w, http.StatusBadRequest, "outcome must be beep, silence or undetermined")
		return
	}

	entries, err := s.audit.List(r.Context(), opts)
	if err != nil {
		observe.Logger(r.Context()).Error("failed to list decisions", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	e, err := s.audit.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("failed to get decision", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get decision")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
