// Package streamserver serves a catalog of recorded calls as live audio.
//
// Each WAV file is mixed down to mono and sent as raw 16-bit little-endian
// PCM, one frame at a time, paced to wall-clock time so that clients see the
// same timing as a real call. Two transports are offered:
//
//	GET /audio/stream?file=<name>   chunked HTTP body, Content-Type audio/L16
//	GET /audio/ws?file=<name>       one binary WebSocket message per frame
//
// Unknown names and missing files answer 404 before any audio is sent.
package streamserver

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/MrWong99/beepwise/internal/audit"
	"github.com/MrWong99/beepwise/internal/health"
	"github.com/MrWong99/beepwise/internal/observe"
)

// DefaultFrameDuration is the audio sent per write.
const DefaultFrameDuration = 20 * time.Millisecond

// Catalog resolves stream names to WAV paths.
type Catalog interface {
	Lookup(name string) (path string, ok bool)
	Names() []string
}

// StaticCatalog is a fixed name-to-path catalog.
type StaticCatalog map[string]string

// Lookup implements [Catalog].
func (c StaticCatalog) Lookup(name string) (string, bool) {
	p, ok := c[name]
	return p, ok
}

// Names implements [Catalog]. The names are sorted.
func (c StaticCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Option configures a [Server].
type Option func(*Server)

// WithFrameDuration changes the frame length and pacing interval.
func WithFrameDuration(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.frameDur = d
		}
	}
}

// WithPacing toggles real-time pacing. When off, frames are written as fast
// as the client reads them.
func WithPacing(on bool) Option {
	return func(s *Server) { s.paced = on }
}

// WithMetrics records active streams and request latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAudit exposes the decision log under /v1/decisions.
func WithAudit(store audit.Store) Option {
	return func(s *Server) { s.audit = store }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server is the paced audio server. It is safe for concurrent use.
type Server struct {
	catalog        Catalog
	frameDur       time.Duration
	paced          bool
	metrics        *observe.Metrics
	audit          audit.Store
	health         *health.Handler
	metricsHandler http.Handler
}

// New returns a Server for catalog.
func New(catalog Catalog, opts ...Option) *Server {
	s := &Server{
		catalog:  catalog,
		frameDur: DefaultFrameDuration,
		paced:    true,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /audio/stream", s.handleStream)
	mux.HandleFunc("GET /audio/ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/streams", s.handleStreams)
	if s.audit != nil {
		mux.HandleFunc("GET /v1/decisions", s.handleDecisions)
		mux.HandleFunc("GET /v1/decisions/{id}", s.handleDecision)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleStreams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"streams": s.catalog.Names()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
