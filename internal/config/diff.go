package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. The hot-reloadable
// settings carry their own flags; every other changed section is listed in
// RestartRequired and only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranslationChanged covers every field of the translation section.
	TranslationChanged bool
	Translation        TranslationConfig

	// SessionTimingChanged covers inactive_timeout, cleanup_interval and
	// ping_interval.
	SessionTimingChanged bool

	GlossaryChanged bool
	Glossary        []string

	// RestartRequired names the changed settings that are not applied live,
	// in a stable order.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TranslationChanged && !d.SessionTimingChanged &&
		!d.GlossaryChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Translation != new.Translation {
		d.TranslationChanged = true
		d.Translation = new.Translation
	}
	was, now := old.Session, new.Session
	if was.InactiveTimeout != now.InactiveTimeout || was.CleanupInterval != now.CleanupInterval || was.PingInterval != now.PingInterval {
		d.SessionTimingChanged = true
	}
	if !slices.Equal(old.Voice.Glossary, new.Voice.Glossary) {
		d.GlossaryChanged = true
		d.Glossary = slices.Clone(new.Voice.Glossary)
	}

	restart := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr)
	restart("server.cors_origins", old.Server.CORSOrigins, new.Server.CORSOrigins)
	restart("server.tls", old.Server.TLS, new.Server.TLS)
	restart("providers", old.Providers, new.Providers)
	restart("knowledge", old.Knowledge, new.Knowledge)
	restart("search", old.Search, new.Search)
	restart("analytics", old.Analytics, new.Analytics)
	restart("session.buffers",
		[4]int{was.SendBuffer, was.TaskBuffer, was.AudioBuffer, was.PartialThresholdBytes},
		[4]int{now.SendBuffer, now.TaskBuffer, now.AudioBuffer, now.PartialThresholdBytes})
	ov, nv := old.Voice, new.Voice
	ov.Glossary, nv.Glossary = nil, nil
	restart("voice", ov, nv)

	return d
}
