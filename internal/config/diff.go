package config

import (
	"reflect"

	"github.com/MrWong99/grenouille/internal/segment"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and the segmenter timing are applied live; every other
// change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TimingChanged bool
	NewTiming     segment.Timing

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Timing returns the state machine timing described by c.
func (c SegmenterConfig) Timing() segment.Timing {
	return segment.Timing{
		EndSilence:       c.EndSilence,
		MinUtterance:     c.MinUtterance,
		DetectionLatency: c.DetectionLatency,
	}
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if ot, nt := old.Segmenter.Timing(), new.Segmenter.Timing(); ot != nt {
		d.TimingChanged = true
		d.NewTiming = nt
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldSeg, newSeg := old.Segmenter, new.Segmenter
	oldSeg.EndSilence, oldSeg.MinUtterance, oldSeg.DetectionLatency = 0, 0, 0
	newSeg.EndSilence, newSeg.MinUtterance, newSeg.DetectionLatency = 0, 0, 0

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"segmenter", oldSeg, newSeg},
		{"vad", old.VAD, new.VAD},
		{"wakeword", old.Wakeword, new.Wakeword},
		{"providers", old.Providers, new.Providers},
		{"assistant", old.Assistant, new.Assistant},
		{"history", old.History, new.History},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}

	return d
}
