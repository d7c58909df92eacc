package audio

import "fmt"

// Chunk pairs the raw wire bytes of one frame with its decoded form. The raw
// bytes are forwarded to live transcription unchanged.
type Chunk struct {
	Raw   []byte
	Frame Frame
}

// Framer cuts an arbitrary byte stream into fixed-size frames and stamps each
// frame with a sample-accurate timestamp. Incomplete trailing bytes stay
// buffered until the next Write completes them.
//
// A Framer belongs to one stream and is not safe for concurrent use.
type Framer struct {
	format  Format
	buf     []byte
	samples int64
}

// NewFramer returns a Framer for the given format.
func NewFramer(f Format) (*Framer, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Framer{format: f}, nil
}

// Format returns the frame layout this Framer produces.
func (fr *Framer) Format() Format { return fr.format }

// Write appends a transport chunk to the internal buffer.
func (fr *Framer) Write(chunk []byte) {
	fr.buf = append(fr.buf, chunk...)
}

// Next removes and returns the next complete frame. ok is false when fewer
// than one frame of bytes is buffered.
func (fr *Framer) Next() (Chunk, bool) {
	n := fr.format.FrameBytes()
	if len(fr.buf) < n {
		return Chunk{}, false
	}
	raw := make([]byte, n)
	copy(raw, fr.buf[:n])
	fr.buf = fr.buf[n:]

	ts := float64(fr.samples) / float64(fr.format.SampleRate)
	samples := DecodePCM16(raw)
	fr.samples += int64(len(samples))

	frame, err := NewFrame(fr.format, samples, ts)
	if err != nil {
		// Unreachable: raw is always exactly one frame long.
		panic(fmt.Sprintf("audio: framer produced invalid frame: %v", err))
	}
	return Chunk{Raw: raw, Frame: frame}, true
}

// Buffered returns the number of bytes waiting for a complete frame.
func (fr *Framer) Buffered() int { return len(fr.buf) }

// SamplesSeen returns the total number of samples emitted so far.
func (fr *Framer) SamplesSeen() int64 { return fr.samples }
