package core

import (
	"sort"

	"epgviewer/internal/fingerprint"
	"epgviewer/internal/mirror"
	"epgviewer/internal/playlist"
	"epgviewer/internal/xmltv"
)

// assembleFingerprint builds the cache key covering everything one Assemble
// pass depends on: each group's current mirror signature (or just its URL,
// before anything has been fetched), the mapping set, the sorted playlist
// channel id set, and the requested window. buildAssembly and renderExport
// share this so the schedule cache and the export cache key identically
// shaped inputs the same way PrewarmScheduler does.
func assembleFingerprint(store *mirror.Store, groups []MergeGroup, channels []playlist.Channel, mappings map[string]ChannelMapping, window xmltv.Window) fingerprint.Key {
	fp := fingerprint.Key{
		Window: fingerprint.Window{FromUnix: unixOrZero(window.From), ToUnix: unixOrZero(window.To)},
	}
	for _, g := range groups {
		fp.Mirrors = append(fp.Mirrors, mirrorSignature(store, g.SourceURL))
	}
	fp.PlaylistIDs = playlistIDs(channels)
	fp.Mappings = mappingSignatures(mappings)
	return fp
}

// mirrorSignature looks up url's current fetch signature; if nothing has
// been fetched yet it falls back to a signature with just the URL set, so a
// pre-fetch key is still stable and distinguishes URLs from one another.
func mirrorSignature(store *mirror.Store, url string) fingerprint.MirrorSignature {
	if sig, ok := store.Signature(url); ok {
		return fingerprint.MirrorSignature{
			URL:          sig.URL,
			ETag:         sig.ETag,
			LastModified: sig.LastModified,
			Size:         sig.Size,
			ModTimeUnix:  sig.ModTimeUnix,
		}
	}
	return fingerprint.MirrorSignature{URL: url}
}

// playlistIDs returns the sorted set of playlist channel ids in channels.
func playlistIDs(channels []playlist.Channel) []string {
	ids := make([]string, 0, len(channels))
	for _, c := range channels {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// mappingSignatures flattens a ChannelMapping set into its fingerprint
// representation.
func mappingSignatures(mappings map[string]ChannelMapping) []fingerprint.MappingSignature {
	sigs := make([]fingerprint.MappingSignature, 0, len(mappings))
	for id, m := range mappings {
		sigs = append(sigs, fingerprint.MappingSignature{
			SourceID: m.SourceID, EPGID: id, Offset: m.OffsetMinutes, Zone: m.ZoneID, Mode: m.ShiftMode,
		})
	}
	return sigs
}
