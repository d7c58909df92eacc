package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/beepwise/pkg/audio"
)

// writeWAV encodes interleaved integer samples to a WAV file in dir.
func writeWAV(t *testing.T, dir string, rate, channels, depth int, data []int) string {
	t.Helper()
	path := filepath.Join(dir, "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// drain reads src to io.EOF.
func drain(t *testing.T, src Source) []byte {
	t.Helper()
	var out []byte
	for {
		chunk, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if len(chunk) == 0 {
			t.Fatal("Next returned an empty chunk")
		}
		out = append(out, chunk...)
	}
}

func TestLoadWAV_StereoDownmix(t *testing.T) {
	// Left and right cancel out except for a constant offset on the left.
	data := make([]int, 0, 2*800)
	for range 800 {
		data = append(data, 8192, 0)
	}
	path := writeWAV(t, t.TempDir(), 8000, 2, 16, data)

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if clip.SampleRate != 8000 || clip.Channels != 2 {
		t.Errorf("clip = %d Hz, %d channels; want 8000, 2", clip.SampleRate, clip.Channels)
	}
	if len(clip.Samples) != 800 {
		t.Fatalf("samples = %d, want 800", len(clip.Samples))
	}
	if got := clip.Samples[10]; math.Abs(got-0.125) > 1e-9 {
		t.Errorf("sample = %v, want 0.125 (mean of 0.25 and 0)", got)
	}
	if d := clip.Duration(); math.Abs(d-0.1) > 1e-9 {
		t.Errorf("Duration = %v, want 0.1", d)
	}
}

func TestLoadWAV_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadWAV(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
	junk := filepath.Join(dir, "junk.wav")
	if err := os.WriteFile(junk, []byte("definitely not a wav file, just text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWAV(junk); !errors.Is(err, ErrUnsupportedWAV) {
		t.Errorf("err = %v, want ErrUnsupportedWAV", err)
	}
}

func TestNormalise(t *testing.T) {
	got, err := normalise([]int{0, 128, 255}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != -1 || got[1] != 0 {
		t.Errorf("8-bit = %v", got)
	}
	got, _ = normalise([]int{-32768, 16384}, 16)
	if got[0] != -1 || got[1] != 0.5 {
		t.Errorf("16-bit = %v", got)
	}
	if _, err := normalise([]int{1}, 12); !errors.Is(err, ErrUnsupportedWAV) {
		t.Errorf("12-bit err = %v", err)
	}
}

func TestFile_ResamplesAndChunks(t *testing.T) {
	// One second at 16 kHz becomes 8000 samples, 50 frames of 320 bytes.
	path := writeWAV(t, t.TempDir(), 16000, 1, 16, make([]int, 16000))

	src, err := OpenFile(path, audio.DefaultFormat())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer src.Close()

	if src.Len() != 16000 {
		t.Errorf("Len = %d, want 16000", src.Len())
	}
	first, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != audio.DefaultFrameSizeBytes {
		t.Errorf("chunk = %d bytes, want %d", len(first), audio.DefaultFrameSizeBytes)
	}
	rest := drain(t, src)
	if len(first)+len(rest) != 16000 {
		t.Errorf("total = %d bytes, want 16000", len(first)+len(rest))
	}
}

func TestFile_CloseEndsStream(t *testing.T) {
	clip := Clip{Samples: make([]float64, 1600), SampleRate: 8000, Channels: 1}
	src := NewClipSource(clip, audio.DefaultFormat(), WithFramesPerChunk(2))

	chunk, err := src.Next(context.Background())
	if err != nil || len(chunk) != 640 {
		t.Fatalf("Next = %d bytes, %v; want 640, nil", len(chunk), err)
	}
	_ = src.Close()
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next after Close = %v, want io.EOF", err)
	}
}

func TestFile_Realtime(t *testing.T) {
	// Five 20 ms frames: the last one may not be delivered before 80 ms.
	clip := Clip{Samples: make([]float64, 800), SampleRate: 8000, Channels: 1}
	src := NewClipSource(clip, audio.DefaultFormat(), WithRealtime(true))

	start := time.Now()
	drain(t, src)
	if elapsed := time.Since(start); elapsed < 75*time.Millisecond {
		t.Errorf("realtime playback took %v, want at least 80ms", elapsed)
	}
}

func TestFile_RealtimeCancel(t *testing.T) {
	clip := Clip{Samples: make([]float64, 8000), SampleRate: 8000, Channels: 1}
	src := NewClipSource(clip, audio.DefaultFormat(), WithRealtime(true), WithFramesPerChunk(25))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Next = %v, want deadline exceeded", err)
	}
}

func TestHTTP(t *testing.T) {
	payload := bytes.Repeat([]byte{1, 2}, 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("file") {
		case "vm1":
			w.Header().Set("Content-Type", "audio/L16; rate=8000; channels=1")
			for i := 0; i < len(payload); i += 1000 {
				_, _ = w.Write(payload[i : i+1000])
				w.(http.Flusher).Flush()
			}
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	src, err := OpenHTTP(ctx, srv.URL+"/audio/stream?file=vm1", 8000, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("OpenHTTP: %v", err)
	}
	got := drain(t, src)
	if !bytes.Equal(got, payload) {
		t.Errorf("read %d bytes, want %d identical bytes", len(got), len(payload))
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := OpenHTTP(ctx, srv.URL+"/audio/stream?file=nope", 8000); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown stream err = %v, want ErrNotFound", err)
	}
	if _, err := OpenHTTP(ctx, srv.URL+"/audio/stream?file=broken", 8000); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("server error err = %v, want non-404 error", err)
	}
}

func TestWebSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("file") != "vm1" {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4})
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"note":"ignored"}`))
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{5, 6})
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	ctx := context.Background()
	src, err := DialWebSocket(ctx, wsURL+"/audio/ws?file=vm1")
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer src.Close()

	got := drain(t, src)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("got %v, want binary payloads only", got)
	}

	if _, err := DialWebSocket(ctx, wsURL+"/audio/ws?file=nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown stream err = %v, want ErrNotFound", err)
	}
}
