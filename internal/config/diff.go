package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Detection, judge
// and catalog changes take effect for the next session; fields listed in
// RestartRequired only take effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	DetectionChanged bool
	JudgeChanged     bool

	// StreamsAdded and StreamsRemoved list catalog names, sorted.
	StreamsAdded   []string
	StreamsRemoved []string
	StreamsChanged []string

	// RestartRequired names the top-level sections that changed but are
	// only read at startup.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DetectionChanged && !d.JudgeChanged &&
		len(d.StreamsAdded) == 0 && len(d.StreamsRemoved) == 0 && len(d.StreamsChanged) == 0 &&
		len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.DetectionChanged = old.Detection != new.Detection
	d.JudgeChanged = !reflect.DeepEqual(old.Judge, new.Judge)

	for name, path := range new.Stream.Files {
		prev, ok := old.Stream.Files[name]
		switch {
		case !ok:
			d.StreamsAdded = append(d.StreamsAdded, name)
		case prev != path || old.Stream.Dir != new.Stream.Dir:
			d.StreamsChanged = append(d.StreamsChanged, name)
		}
	}
	for name := range old.Stream.Files {
		if _, ok := new.Stream.Files[name]; !ok {
			d.StreamsRemoved = append(d.StreamsRemoved, name)
		}
	}
	slices.Sort(d.StreamsAdded)
	slices.Sort(d.StreamsRemoved)
	slices.Sort(d.StreamsChanged)

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Audit != new.Audit {
		d.RestartRequired = append(d.RestartRequired, "audit")
	}

	return d
}

// streamNames returns the sorted catalog names of cfg.
func streamNames(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Stream.Files))
}
