package core

import (
	"testing"

	"epgviewer/internal/playlist"
)

func TestTransientKeyDiffersByPlaylistChannels(t *testing.T) {
	sources := map[string]Source{
		"s1": {ID: "s1", URL: "http://a.example/epg.xml", Enabled: true},
	}

	base := PrewarmRequest{
		Channels:      []playlist.Channel{{ID: "chan.1"}},
		DefaultEPGURL: "http://a.example/epg.xml",
		Sources:       sources,
		Mappings:      map[string]ChannelMapping{},
	}
	changed := base
	changed.Channels = []playlist.Channel{{ID: "chan.2"}}

	keyBase := TransientKey(base)
	keyChanged := TransientKey(changed)
	if keyBase == keyChanged {
		t.Fatalf("expected differing playlist channel sets to produce different transient keys, got %q for both", keyBase)
	}
}

func TestTransientKeyStableAcrossSourceMapOrder(t *testing.T) {
	req := PrewarmRequest{
		Channels: []playlist.Channel{{ID: "chan.1"}, {ID: "chan.2"}},
		Sources: map[string]Source{
			"s1": {ID: "s1", URL: "http://a.example/epg.xml", Enabled: true},
			"s2": {ID: "s2", URL: "http://b.example/epg.xml", Enabled: true},
		},
		Mappings: map[string]ChannelMapping{},
	}

	first := TransientKey(req)
	second := TransientKey(req)
	if first != second {
		t.Fatalf("expected TransientKey to be stable for the same request, got %q vs %q", first, second)
	}
}

func TestTransientKeyIgnoresSourceIDsThemselves(t *testing.T) {
	reqA := PrewarmRequest{
		Channels: []playlist.Channel{{ID: "chan.1"}},
		Sources: map[string]Source{
			"source-a": {ID: "source-a", URL: "http://shared.example/epg.xml", Enabled: true},
		},
		Mappings: map[string]ChannelMapping{},
	}
	reqB := PrewarmRequest{
		Channels: []playlist.Channel{{ID: "chan.1"}},
		Sources: map[string]Source{
			"source-b": {ID: "source-b", URL: "http://shared.example/epg.xml", Enabled: true},
		},
		Mappings: map[string]ChannelMapping{},
	}

	if TransientKey(reqA) != TransientKey(reqB) {
		t.Fatalf("expected the source map's internal id to be irrelevant to the key, only its URL")
	}
}
