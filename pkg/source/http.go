package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"
)

const defaultChunkBytes = 4096

// HTTPOption configures an [HTTP] source.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithChunkBytes sets the read buffer size. Default: 4096.
func WithChunkBytes(n int) HTTPOption {
	return func(h *HTTP) {
		if n > 0 {
			h.chunk = n
		}
	}
}

// HTTP reads PCM from a streaming GET response.
type HTTP struct {
	client *http.Client
	chunk  int

	body      io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// OpenHTTP issues the GET request and checks the response. A 404 wraps
// [ErrNotFound]. The response is expected to be audio/L16 at sampleRate; a
// declared rate that differs is logged.
func OpenHTTP(ctx context.Context, url string, sampleRate int, opts ...HTTPOption) (*HTTP, error) {
	h := &HTTP{client: http.DefaultClient, chunk: defaultChunkBytes}
	for _, o := range opts {
		o(h)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: http: build request: %w", err)
	}
	req.Header.Set("Accept", "audio/L16")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: http: get %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("source: http: get %s: status %s", url, resp.Status)
	}
	checkContentType(resp.Header.Get("Content-Type"), sampleRate)

	h.body = resp.Body
	return h, nil
}

// Next implements [Source].
func (h *HTTP) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, h.chunk)
	for {
		n, err := h.body.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("source: http: read: %w", err)
		}
	}
}

// Close implements [Source].
func (h *HTTP) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.body.Close()
	})
	return h.closeErr
}

func checkContentType(ct string, sampleRate int) {
	if ct == "" {
		return
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil || mt != "audio/l16" {
		slog.Warn("source: unexpected content type; treating body as 16-bit PCM", "content_type", ct)
		return
	}
	if r, ok := params["rate"]; ok {
		if rate, err := strconv.Atoi(r); err == nil && rate != sampleRate {
			slog.Warn("source: stream rate differs from pipeline rate", "stream_rate", rate, "pipeline_rate", sampleRate)
		}
	}
}
