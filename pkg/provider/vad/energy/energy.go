// Package energy provides an adaptive short-time-energy VAD.
//
// The engine keeps an exponentially smoothed estimate of the background
// energy (the noise floor). A frame is speech when its mean-square energy is
// more than EnergyThreshold times that floor. The floor moves slowly, so a
// talker registers as a sharp, short-lived ratio spike.
//
// The floor is updated with the current frame before the comparison. Long
// stretches of loud speech therefore pull the floor upward and gradually
// reduce sensitivity.
package energy

import (
	"fmt"

	"github.com/MrWong99/beepwise/pkg/provider/vad"
)

const (
	// DefaultEnergyThreshold is the speech/background ratio above which a frame is speech.
	DefaultEnergyThreshold = 2.0

	// DefaultSmoothing is the weight of each new frame in the noise floor.
	DefaultSmoothing = 0.01

	floorEpsilon = 1e-9
)

// Engine creates adaptive energy VAD sessions. The zero value is ready to use.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewSession implements [vad.Engine]. Zero thresholds take the package defaults.
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return New(cfg)
}

// Session is the per-stream detector. It implements [vad.SessionHandle].
type Session struct {
	threshold float64
	smoothing float64

	floor  float64
	seeded bool
}

var _ vad.SessionHandle = (*Session)(nil)

// New returns a Session for cfg, applying defaults to zero fields.
func New(cfg vad.Config) (*Session, error) {
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = DefaultEnergyThreshold
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = DefaultSmoothing
	}
	if cfg.EnergyThreshold < 0 {
		return nil, fmt.Errorf("energy vad: energy threshold %.3f must be positive", cfg.EnergyThreshold)
	}
	if cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("energy vad: smoothing %.3f is out of range (0, 1]", cfg.Smoothing)
	}
	return &Session{
		threshold: cfg.EnergyThreshold,
		smoothing: cfg.Smoothing,
	}, nil
}

// IsSpeech implements [vad.SessionHandle]. Empty frames are never speech and
// do not touch the noise floor.
func (s *Session) IsSpeech(frame []float64) bool {
	if len(frame) == 0 {
		return false
	}
	e := meanSquare(frame)

	if !s.seeded {
		s.floor = e
		s.seeded = true
		return false
	}

	s.floor = s.smoothing*e + (1-s.smoothing)*s.floor
	return e/(s.floor+floorEpsilon) > s.threshold
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.floor = 0
	s.seeded = false
}

// NoiseFloor returns the current background estimate. ok is false until the
// first frame has been seen.
func (s *Session) NoiseFloor() (floor float64, ok bool) {
	return s.floor, s.seeded
}

func meanSquare(frame []float64) float64 {
	var sum float64
	for _, x := range frame {
		sum += x * x
	}
	return sum / float64(len(frame))
}
