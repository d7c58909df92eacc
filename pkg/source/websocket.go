package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// maxMessageBytes caps a single binary message (about 2 s of 8 kHz audio).
const maxMessageBytes = 1 << 15

// WebSocket reads PCM from binary WebSocket messages. Text messages are
// skipped.
type WebSocket struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to url. A 404 handshake response wraps
// [ErrNotFound].
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("source: ws: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageBytes)
	return &WebSocket{conn: conn}, nil
}

// Next implements [Source]. A normal closure by the peer ends the stream
// with io.EOF.
func (w *WebSocket) Next(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, io.EOF
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("source: ws: read: %w", err)
		}
		if typ != websocket.MessageBinary {
			slog.Debug("source: ws: skipping text message", "bytes", len(data))
			continue
		}
		if len(data) == 0 {
			continue
		}
		return data, nil
	}
}

// Close implements [Source].
func (w *WebSocket) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.conn.Close(websocket.StatusNormalClosure, "")
	})
	return w.closeErr
}
