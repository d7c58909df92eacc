package app

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/MrWong99/beepwise/internal/config"
	"github.com/MrWong99/beepwise/internal/session"
	"github.com/MrWong99/beepwise/pkg/source"
)

// Detect opens the source described by sc and runs one call through the
// current runner. Network sources are retried with backoff; a file source
// is opened once.
func (a *App) Detect(ctx context.Context, sc config.SourceConfig) (session.Result, error) {
	cfg := a.Config()
	call := session.Call{ID: CallID(sc.URL), Source: sc.URL}

	kind := sc.Kind
	if kind == "" {
		kind = config.InferSourceKind(sc.URL)
	}

	var (
		src source.Source
		err error
	)
	open := func(ctx context.Context) (source.Source, error) {
		return OpenSource(ctx, cfg, kind, sc)
	}
	if kind == config.SourceFile {
		src, err = open(ctx)
	} else {
		src, err = session.Connect(ctx, open, session.RetryConfig{Name: call.ID})
	}
	if err != nil {
		return session.Result{Call: call, Mode: cfg.Detection.Mode}, fmt.Errorf("app: open source: %w", err)
	}
	return a.Runner().Run(ctx, call, src)
}

// OpenSource opens one frame source of the given kind.
func OpenSource(ctx context.Context, cfg *config.Config, kind config.SourceKind, sc config.SourceConfig) (source.Source, error) {
	switch kind {
	case config.SourceHTTP:
		return source.OpenHTTP(ctx, sc.URL, cfg.Audio.SampleRate)
	case config.SourceWebSocket:
		return source.DialWebSocket(ctx, sc.URL)
	case config.SourceFile:
		return source.OpenFile(sc.URL, cfg.Format(), source.WithRealtime(sc.Realtime))
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// CallID names a call after its source: the ?file= parameter of stream
// URLs, otherwise the last path element without its extension.
func CallID(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		if f := u.Query().Get("file"); f != "" {
			return f
		}
		raw = u.Path
	}
	base := path.Base(strings.ReplaceAll(raw, `\`, "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" || base == "" {
		return "call"
	}
	return base
}
