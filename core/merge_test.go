package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"epgviewer/internal/playlist"
)

func TestPlanMergeGroupsBySourceWithIDMapTranslation(t *testing.T) {
	channels := []playlist.Channel{
		{ID: "chan.1", Name: "Channel One"},
		{ID: "chan.2", Name: "Channel Two"},
	}
	mappings := map[string]ChannelMapping{
		"chan.1": {SourceID: "src-a", EPGChannelID: "upstream.one"},
	}
	sources := map[string]Source{
		"src-a": {ID: "src-a", URL: "http://a.example/epg.xml", Enabled: true},
	}

	groups := PlanMerge(channels, mappings, sources, "http://default.example/epg.xml")

	want := []MergeGroup{
		{SourceURL: "http://a.example/epg.xml", IDMap: map[string]string{"upstream.one": "chan.1"}},
		{SourceURL: "http://default.example/epg.xml", IDMap: map[string]string{"chan.2": "chan.2"}},
	}
	for i := range want {
		if diff := cmp.Diff(want[i].SourceURL, groups[i].SourceURL); diff != "" {
			t.Errorf("group %d SourceURL mismatch (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(want[i].IDMap, groups[i].IDMap); diff != "" {
			t.Errorf("group %d IDMap mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestPlanMergeDisabledSourceFallsBackToDefault(t *testing.T) {
	channels := []playlist.Channel{{ID: "chan.1"}}
	mappings := map[string]ChannelMapping{
		"chan.1": {SourceID: "src-a"},
	}
	sources := map[string]Source{
		"src-a": {ID: "src-a", URL: "http://a.example/epg.xml", Enabled: false},
	}

	groups := PlanMerge(channels, mappings, sources, "http://default.example/epg.xml")
	if len(groups) != 1 {
		t.Fatalf("expected exactly one group, got %d", len(groups))
	}
	if groups[0].SourceURL != "http://default.example/epg.xml" {
		t.Fatalf("expected fallback to default EPG URL, got %q", groups[0].SourceURL)
	}
}

func TestPlanMergeEmptyPlaylistUsesSourceURLsUnrestricted(t *testing.T) {
	sources := map[string]Source{
		"src-a": {ID: "src-a", URL: "http://a.example/epg.xml", Enabled: true},
		"src-b": {ID: "src-b", URL: "http://b.example/epg.xml", Enabled: false},
	}

	groups := PlanMerge(nil, nil, sources, "http://default.example/epg.xml")

	var urls []string
	for _, g := range groups {
		urls = append(urls, g.SourceURL)
		if g.AllowedIDs != nil {
			t.Errorf("expected unrestricted AllowedIDs for %q, got %v", g.SourceURL, g.AllowedIDs)
		}
	}
	want := []string{"http://a.example/epg.xml", "http://default.example/epg.xml"}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("group URLs mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanMergeChannelWithoutMappingOrDefaultGetsNoGroup(t *testing.T) {
	channels := []playlist.Channel{{ID: "chan.orphan"}}
	groups := PlanMerge(channels, map[string]ChannelMapping{}, map[string]Source{}, "")
	if len(groups) != 0 {
		t.Fatalf("expected no groups when there is no mapping or default EPG URL, got %v", groups)
	}
}
