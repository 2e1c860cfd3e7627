package core

import (
	"sort"

	"epgviewer/internal/playlist"
	"epgviewer/internal/xmltv"
)

// MergeGroup is one upstream URL's share of work: which EPG-side ids to
// keep, and how to translate them back to playlist ids. Transient — built
// fresh for every assemble pass.
type MergeGroup struct {
	SourceURL  string
	AllowedIDs map[string]struct{} // nil means "all"
	IDMap      map[string]string   // normalized EPG id -> playlist id
}

// PlanMerge computes, from the playlist channel set, the mapping table, the
// enabled sources, and an optional default EPG URL, one MergeGroup per
// distinct source URL that actually has work.
func PlanMerge(channels []playlist.Channel, mappings map[string]ChannelMapping, sources map[string]Source, defaultEPGURL string) []MergeGroup {
	groups := make(map[string]*MergeGroup)

	groupFor := func(url string) *MergeGroup {
		g, ok := groups[url]
		if !ok {
			g = &MergeGroup{SourceURL: url, IDMap: make(map[string]string)}
			groups[url] = g
		}
		return g
	}

	if len(channels) == 0 {
		// No playlist: one group per distinct enabled source URL plus the
		// default, each unrestricted.
		urls := map[string]struct{}{}
		if defaultEPGURL != "" {
			urls[defaultEPGURL] = struct{}{}
		}
		for _, s := range sources {
			if s.Enabled {
				urls[s.URL] = struct{}{}
			}
		}
		for url := range urls {
			groupFor(url).AllowedIDs = nil
		}
		return sortedGroups(groups)
	}

	for _, p := range channels {
		m, hasMapping := mappings[p.ID]

		if hasMapping && m.SourceID != "" {
			if s, ok := sources[m.SourceID]; ok && s.Enabled {
				g := groupFor(s.URL)
				epgID := m.EPGChannelID
				if epgID == "" {
					epgID = p.ID
				}
				addAllowed(g, epgID)
				g.IDMap[xmltv.NormalizeID(epgID)] = p.ID
				continue
			}
		}

		if defaultEPGURL != "" {
			g := groupFor(defaultEPGURL)
			addAllowed(g, p.ID)
			g.IDMap[xmltv.NormalizeID(p.ID)] = p.ID
			continue
		}

		// No mapping and no default: the channel gets a header only, no
		// group assignment. Nothing to record here.
	}

	return sortedGroups(groups)
}

func addAllowed(g *MergeGroup, id string) {
	if g.AllowedIDs == nil {
		g.AllowedIDs = make(map[string]struct{})
	}
	g.AllowedIDs[xmltv.NormalizeID(id)] = struct{}{}
}

func sortedGroups(groups map[string]*MergeGroup) []MergeGroup {
	urls := make([]string, 0, len(groups))
	for url := range groups {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	out := make([]MergeGroup, 0, len(urls))
	for _, url := range urls {
		out = append(out, *groups[url])
	}
	return out
}
