package fingerprint

import "testing"

func TestHashStableAcrossInputOrder(t *testing.T) {
	a := Key{
		Kind: KindEPG,
		Mirrors: []MirrorSignature{
			{URL: "http://b.example/epg.xml", ETag: "b1"},
			{URL: "http://a.example/epg.xml", ETag: "a1"},
		},
		Mappings: []MappingSignature{
			{SourceID: "src2", EPGID: "e2"},
			{SourceID: "src1", EPGID: "e1"},
		},
		PlaylistIDs: []string{"p2", "p1"},
	}
	b := Key{
		Kind: KindEPG,
		Mirrors: []MirrorSignature{
			{URL: "http://a.example/epg.xml", ETag: "a1"},
			{URL: "http://b.example/epg.xml", ETag: "b1"},
		},
		Mappings: []MappingSignature{
			{SourceID: "src1", EPGID: "e1"},
			{SourceID: "src2", EPGID: "e2"},
		},
		PlaylistIDs: []string{"p1", "p2"},
	}

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected identical hashes regardless of slice order, got %q vs %q", ha, hb)
	}
}

func TestHashDiffersOnKind(t *testing.T) {
	base := Key{Mirrors: []MirrorSignature{{URL: "http://a.example"}}}
	a := base
	a.Kind = KindExportGz
	b := base
	b.Kind = KindExportXML

	ha := a.MustHash()
	hb := b.MustHash()
	if ha == hb {
		t.Fatal("expected different kinds to hash differently")
	}
}

func TestHashDiffersOnWindow(t *testing.T) {
	a := Key{Kind: KindChannel, Window: Window{FromUnix: 100, ToUnix: 200}}
	b := Key{Kind: KindChannel, Window: Window{FromUnix: 100, ToUnix: 300}}
	if a.MustHash() == b.MustHash() {
		t.Fatal("expected different windows to hash differently")
	}
}

func TestHashSensitiveToMirrorSignature(t *testing.T) {
	a := Key{Kind: KindEPG, Mirrors: []MirrorSignature{{URL: "u", ETag: "v1"}}}
	b := Key{Kind: KindEPG, Mirrors: []MirrorSignature{{URL: "u", ETag: "v2"}}}
	if a.MustHash() == b.MustHash() {
		t.Fatal("expected different etag to hash differently")
	}
}

func TestHashIsHexBlake2b256(t *testing.T) {
	k := Key{Kind: KindEPG}
	h := k.MustHash()
	if len(h) != 64 {
		t.Fatalf("expected 32-byte digest hex-encoded (64 chars), got %d: %q", len(h), h)
	}
}
