package app

import (
	"slices"
)

// catalog serves the stream catalog of the config currently in effect, so
// reloads apply to the next request.
type catalog struct{ a *App }

func (c catalog) Lookup(name string) (string, bool) {
	return c.a.Config().StreamPath(name)
}

func (c catalog) Names() []string {
	files := c.a.Config().Stream.Files
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// catalogPaths returns every catalog entry resolved against stream.dir.
func (a *App) catalogPaths() map[string]string {
	cfg := a.Config()
	out := make(map[string]string, len(cfg.Stream.Files))
	for name := range cfg.Stream.Files {
		if p, ok := cfg.StreamPath(name); ok {
			out[name] = p
		}
	}
	return out
}
