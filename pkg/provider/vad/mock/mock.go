// Package mock provides scripted test doubles for the vad interfaces.
//
// A Session answers IsSpeech from a Script, one entry per frame, so tests can
// lay out a greeting as "speech for N frames, then silence" without
// synthesising audio:
//
//	sess := &mock.Session{Script: mock.Speech(25, 110)}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

// Speech returns a script of speechFrames true entries followed by
// silenceFrames false entries.
func Speech(speechFrames, silenceFrames int) []bool {
	script := make([]bool, speechFrames+silenceFrames)
	for i := range speechFrames {
		script[i] = true
	}
	return script
}

// Engine is a mock [vad.Engine].
type Engine struct {
	// Session is handed out by every NewSession call. When nil, each call
	// gets a fresh Session that never reports speech.
	Session vad.SessionHandle

	// Err, when set, fails NewSession.
	Err error

	mu      sync.Mutex
	configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records cfg and returns Session or Err.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	switch {
	case e.Err != nil:
		return nil, e.Err
	case e.Session != nil:
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns the configs passed to NewSession, in call order.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session is a mock [vad.SessionHandle].
type Session struct {
	// Script answers the n-th IsSpeech call. Calls past the end of the
	// script return After.
	Script []bool
	After  bool

	mu     sync.Mutex
	calls  int
	resets int
	last   []float64
}

var _ vad.SessionHandle = (*Session)(nil)

// IsSpeech returns the next scripted answer and keeps a copy of frame.
func (s *Session) IsSpeech(frame []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = append(s.last[:0], frame...)
	i := s.calls
	s.calls++
	if i < len(s.Script) {
		return s.Script[i]
	}
	return s.After
}

// Reset counts the call. The script position is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Calls is the number of IsSpeech calls so far.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Resets is the number of Reset calls so far.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// LastFrame returns a copy of the most recent frame classified.
func (s *Session) LastFrame() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.last...)
}
