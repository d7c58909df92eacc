package streamserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/beepwise/internal/observe"
	"github.com/MrWong99/beepwise/pkg/audio"
	"github.com/MrWong99/beepwise/pkg/source"
)

// open resolves ?file= and loads the clip. On failure it writes the error
// response and returns false.
func (s *Server) open(w http.ResponseWriter, r *http.Request) (source.Clip, string, bool) {
	name := r.URL.Query().Get("file")
	path, ok := s.catalog.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Invalid audio file")
		return source.Clip{}, name, false
	}
	clip, err := source.LoadWAV(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "File not found")
		return source.Clip{}, name, false
	case errors.Is(err, source.ErrUnsupportedWAV):
		observe.Logger(r.Context()).Warn("unsupported catalog file", "file", name, "err", err)
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return source.Clip{}, name, false
	case err != nil:
		observe.Logger(r.Context()).Error("failed to load catalog file", "file", name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load audio")
		return source.Clip{}, name, false
	}
	return clip, name, true
}

// frames splits the clip into encoded frames. A trailing partial frame is
// dropped.
func (s *Server) frames(clip source.Clip) [][]byte {
	size := int(int64(clip.SampleRate) * int64(s.frameDur) / int64(time.Second))
	if size <= 0 {
		return nil
	}
	out := make([][]byte, 0, len(clip.Samples)/size)
	for i := 0; i+size <= len(clip.Samples); i += size {
		out = append(out, audio.EncodePCM16(clip.Samples[i:i+size]))
	}
	return out
}

// send writes every frame with write, starting frame i no earlier than
// i frame durations after the first.
func (s *Server) send(ctx context.Context, frames [][]byte, write func([]byte) error) error {
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	start := time.Now()
	for i, f := range frames {
		if s.paced && i > 0 {
			if wait := time.Until(start.Add(time.Duration(i) * s.frameDur)); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := write(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	clip, name, ok := s.open(w, r)
	if !ok {
		return
	}
	log := observe.Logger(r.Context()).With("file", name, "transport", "http")

	frames := s.frames(clip)
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", fmt.Sprintf("audio/L16;rate=%d;channels=1", clip.SampleRate))
	w.WriteHeader(http.StatusOK)

	log.Info("streaming", "frames", len(frames), "sample_rate", clip.SampleRate, "duration", fmt.Sprintf("%.2fs", clip.Duration()))
	err := s.send(r.Context(), frames, func(b []byte) error {
		if _, err := w.Write(b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		log.Debug("stream ended early", "err", err)
		return
	}
	log.Debug("stream complete")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clip, name, ok := s.open(w, r)
	if !ok {
		return
	}
	log := observe.Logger(r.Context()).With("file", name, "transport", "ws")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Reads are not expected; CloseRead handles pings and the close frame.
	ctx := conn.CloseRead(r.Context())

	frames := s.frames(clip)
	log.Info("streaming", "frames", len(frames), "sample_rate", clip.SampleRate)
	err = s.send(ctx, frames, func(b []byte) error {
		return conn.Write(ctx, websocket.MessageBinary, b)
	})
	if err != nil {
		log.Debug("stream ended early", "err", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "end of stream")
}
