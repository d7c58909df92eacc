// Package beep detects the single-frequency tone a voicemail system plays
// before it starts recording.
//
// A frame qualifies as "beep-like" when three independent spectral criteria
// hold at once:
//
//   - most of the frame's energy falls inside the 700–2000 Hz beep band,
//   - one bin dominates the band (a pure tone rather than broadband noise),
//   - the frame is markedly louder than the recent energy history.
//
// A beep is confirmed once an unbroken run of qualifying frames reaches
// MinFrames. Runs longer than MaxFrames are discarded so held tones such as
// dial tones never fire. After confirmation the [Detector] is inert.
//
// A Detector holds per-call state and must not be shared between calls or
// goroutines.
package beep

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// BandLowHz and BandHighHz bound the beep band (inclusive).
	BandLowHz  = 700.0
	BandHighHz = 2000.0

	// HistorySize is the number of total-energy values kept for spike detection.
	HistorySize = 10

	// minHistory is the history length required before a spike can register.
	minHistory = 5

	silentEnergy = 1e-10
	epsilon      = 1e-10
)

// Config tunes the detector. Zero fields are replaced by defaults in [New].
type Config struct {
	// SampleRate is the audio sample rate in Hz. Required.
	SampleRate int

	// MinFrames is the unbroken run length that confirms a beep. Default 5 (~100 ms).
	MinFrames int

	// MaxFrames is the longest run still considered a beep. Default 150 (~300 ms).
	MaxFrames int

	// BandRatioThreshold is the fraction of energy that must fall in the band. Default 0.45.
	BandRatioThreshold float64

	// PeakDominanceThreshold is the band peak / band mean ratio required. Default 10.
	PeakDominanceThreshold float64

	// EnergySpikeMultiplier is how much louder than the recent mean a frame must be. Default 2.
	EnergySpikeMultiplier float64
}

// DefaultConfig returns the tuned defaults for the given sample rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:             sampleRate,
		MinFrames:              5,
		MaxFrames:              150,
		BandRatioThreshold:     0.45,
		PeakDominanceThreshold: 10.0,
		EnergySpikeMultiplier:  2.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.SampleRate)
	if c.MinFrames <= 0 {
		c.MinFrames = d.MinFrames
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.BandRatioThreshold <= 0 {
		c.BandRatioThreshold = d.BandRatioThreshold
	}
	if c.PeakDominanceThreshold <= 0 {
		c.PeakDominanceThreshold = d.PeakDominanceThreshold
	}
	if c.EnergySpikeMultiplier <= 0 {
		c.EnergySpikeMultiplier = d.EnergySpikeMultiplier
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("beep: sample rate %d must be positive", c.SampleRate)
	}
	if c.BandRatioThreshold >= 1 {
		return fmt.Errorf("beep: band ratio threshold %.2f must be below 1", c.BandRatioThreshold)
	}
	if c.MinFrames > c.MaxFrames {
		return fmt.Errorf("beep: min frames %d exceeds max frames %d", c.MinFrames, c.MaxFrames)
	}
	if c.PeakDominanceThreshold < 1 {
		return fmt.Errorf("beep: peak dominance threshold %.2f must be at least 1", c.PeakDominanceThreshold)
	}
	return nil
}

// Detector is the stateful spectral beep detector for one call.
type Detector struct {
	cfg Config

	consecutive int
	runStart    float64
	running     bool
	history     []float64
	detected    bool

	// FFT plan and scratch buffers, sized lazily to the frame length.
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
	power    []float64
	band     []float64
}

// New returns a Detector for cfg.
func New(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:     cfg,
		history: make([]float64, 0, HistorySize),
	}, nil
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// Process analyses one frame. It returns the timestamp of the first frame of
// the confirming run and true exactly once: on the call that reaches
// MinFrames. Every other call, including all calls after detection, returns
// (0, false).
func (d *Detector) Process(frame []float64, timestamp float64) (float64, bool) {
	if d.detected {
		return 0, false
	}
	if len(frame) < 2 {
		d.reset()
		return 0, false
	}

	power := d.powerSpectrum(frame)
	total := floats.Sum(power)
	if total <= silentEnergy {
		d.reset()
		return 0, false
	}

	d.band = d.band[:0]
	for i, p := range power {
		hz := d.fft.Freq(i) * float64(d.cfg.SampleRate)
		if hz >= BandLowHz && hz <= BandHighHz {
			d.band = append(d.band, p)
		}
	}
	if len(d.band) == 0 {
		d.reset()
		return 0, false
	}

	bandRatio := floats.Sum(d.band) / total
	peakDominance := floats.Max(d.band) / (stat.Mean(d.band, nil) + epsilon)

	spike := d.pushEnergy(total)

	isBeep := bandRatio > d.cfg.BandRatioThreshold &&
		peakDominance > d.cfg.PeakDominanceThreshold &&
		spike

	if !isBeep {
		d.reset()
		return 0, false
	}

	if d.consecutive == 0 {
		d.runStart = timestamp
		d.running = true
	}
	d.consecutive++
	if d.consecutive > d.cfg.MaxFrames {
		d.reset()
		return 0, false
	}

	if d.consecutive >= d.cfg.MinFrames {
		d.detected = true
		return d.runStart, true
	}
	return 0, false
}

// powerSpectrum applies a Hann window to frame and returns |rfft|² per bin.
// The returned slice is reused across calls.
func (d *Detector) powerSpectrum(frame []float64) []float64 {
	n := len(frame)
	if d.fft == nil || d.fft.Len() != n {
		d.fft = fourier.NewFFT(n)
		d.windowed = make([]float64, n)
		d.coeffs = make([]complex128, n/2+1)
		d.power = make([]float64, n/2+1)
		d.band = make([]float64, 0, n/2+1)
	}

	copy(d.windowed, frame)
	window.Hann(d.windowed)
	d.coeffs = d.fft.Coefficients(d.coeffs, d.windowed)

	for i, c := range d.coeffs {
		re, im := real(c), imag(c)
		d.power[i] = re*re + im*im
	}
	return d.power
}

// pushEnergy appends total to the FIFO history and reports whether it is a
// spike relative to the mean of the preceding entries.
func (d *Detector) pushEnergy(total float64) bool {
	if len(d.history) == HistorySize {
		copy(d.history, d.history[1:])
		d.history = d.history[:HistorySize-1]
	}
	d.history = append(d.history, total)

	if len(d.history) < minHistory {
		return false
	}
	prev := d.history[:len(d.history)-1]
	return total > stat.Mean(prev, nil)*d.cfg.EnergySpikeMultiplier
}

// reset clears the current run. The energy history is kept.
func (d *Detector) reset() {
	d.consecutive = 0
	d.runStart = 0
	d.running = false
}

// Detected reports whether a beep has been confirmed.
func (d *Detector) Detected() bool { return d.detected }

// HistoryLen returns the number of energy values currently retained.
func (d *Detector) HistoryLen() int { return len(d.history) }

// Run returns the current run length and its start timestamp. ok is false
// when no run is active.
func (d *Detector) Run() (frames int, start float64, ok bool) {
	return d.consecutive, d.runStart, d.running
}
