package config

import "github.com/voxmorph/voxmorph/internal/catalog"

// ConfigDiff describes what changed between two configs. Only fields the
// server can apply without a restart are tracked: the log level, the seeded
// voice catalog and the soundboard clip table. Audio format and network
// changes require a restart and are reported separately by the caller.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoicesChanged bool        // true if any seeded voice was added, removed or edited
	VoiceChanges  []VoiceDiff // per-voice diffs, keyed by voice ID

	ClipsChanged bool // true if the soundboard clip table changed
}

// VoiceDiff describes what changed for a single seeded voice.
type VoiceDiff struct {
	ID      string
	Added   bool
	Removed bool
	Changed bool // metadata or base effect profile edited in place
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldVoices := make(map[string]int, len(old.Catalog.Voices))
	for i := range old.Catalog.Voices {
		oldVoices[old.Catalog.Voices[i].ID] = i
	}
	newVoices := make(map[string]int, len(new.Catalog.Voices))
	for i := range new.Catalog.Voices {
		newVoices[new.Catalog.Voices[i].ID] = i
	}

	for id, oi := range oldVoices {
		ni, exists := newVoices[id]
		if !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{ID: id, Removed: true})
			d.VoicesChanged = true
			continue
		}
		if voiceEdited(&old.Catalog.Voices[oi], &new.Catalog.Voices[ni]) {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{ID: id, Changed: true})
			d.VoicesChanged = true
		}
	}
	for id := range newVoices {
		if _, exists := oldVoices[id]; !exists {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{ID: id, Added: true})
			d.VoicesChanged = true
		}
	}

	d.ClipsChanged = clipsEdited(old.Soundboard.Clips, new.Soundboard.Clips)

	return d
}

// voiceEdited compares two seeded voices with the same ID.
func voiceEdited(old, new *catalog.Voice) bool {
	if old.Name != new.Name || old.Category != new.Category || old.Description != new.Description {
		return true
	}
	switch {
	case old.BaseParams == nil && new.BaseParams == nil:
		return false
	case old.BaseParams == nil || new.BaseParams == nil:
		return true
	default:
		return *old.BaseParams != *new.BaseParams
	}
}

func clipsEdited(old, new []ClipConfig) bool {
	if len(old) != len(new) {
		return true
	}
	for i := range old {
		if old[i] != new[i] {
			return true
		}
	}
	return false
}
