package core

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"epgviewer/internal/fingerprint"
	"epgviewer/internal/xmltv"
)

func testAssembly() Assembly {
	start := time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC)
	return Assembly{
		Channels: []ChannelHeader{
			{ID: "chan.1", DisplayName: "News & Weather", IconURL: "http://icon.example/1.png"},
		},
		Schedules: map[string][]xmltv.Programme{
			"chan.1": {
				{
					ChannelID: "chan.1",
					StartUTC:  start,
					StartRaw:  "20260803200000 +0000",
					StopUTC:   start.Add(30 * time.Minute),
					StopRaw:   "20260803203000 +0000",
					Title:     `Tom & Jerry <Classic>`,
					Category:  "Cartoons",
				},
			},
		},
	}
}

func TestRenderXMLTVEscapesReservedCharacters(t *testing.T) {
	var buf bytes.Buffer
	err := RenderXMLTV(&buf, ExportParams{
		Assembly:      testAssembly(),
		Mappings:      map[string]ChannelMapping{},
		GeneratorName: "epg-viewer-test",
	})
	if err != nil {
		t.Fatalf("RenderXMLTV: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `<!DOCTYPE tv SYSTEM "xmltv.dtd">`) {
		t.Errorf("missing DOCTYPE declaration:\n%s", out)
	}
	if !strings.Contains(out, "Tom &amp; Jerry &lt;Classic&gt;") {
		t.Errorf("expected escaped title, got:\n%s", out)
	}
	if strings.Contains(out, "Tom & Jerry <Classic>") {
		t.Errorf("unescaped reserved characters leaked into output:\n%s", out)
	}
	if !strings.Contains(out, `channel="chan.1"`) {
		t.Errorf("expected channel attribute, got:\n%s", out)
	}
}

func TestRenderXMLTVForceZeroOffsetFlattensTimezone(t *testing.T) {
	var buf bytes.Buffer
	err := RenderXMLTV(&buf, ExportParams{
		Assembly:        testAssembly(),
		Mappings:        map[string]ChannelMapping{},
		ForceZeroOffset: true,
	})
	if err != nil {
		t.Fatalf("RenderXMLTV: %v", err)
	}
	if !strings.Contains(buf.String(), `start="20260803200000 +0000"`) {
		t.Errorf("expected zero-offset start timestamp, got:\n%s", buf.String())
	}
}

func TestBuildExportReusesExistingArtifactAboveSizeThreshold(t *testing.T) {
	if err := Bootstrap(t.TempDir(), true); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	fp := fingerprint.Key{Mirrors: []fingerprint.MirrorSignature{{URL: "http://a.example/epg.xml"}}}
	params := ExportParams{Assembly: testAssembly(), Mappings: map[string]ChannelMapping{}}

	path1, err := BuildExport(context.Background(), System.Folder.Exports, fp, params)
	if err != nil {
		t.Fatalf("BuildExport: %v", err)
	}

	info1, err := System.VFS.Stat(path1)
	if err != nil {
		t.Fatalf("stat built export: %v", err)
	}
	if info1.Size() <= 100 {
		t.Fatalf("expected export artifact over 100 bytes, got %d", info1.Size())
	}

	path2, err := BuildExport(context.Background(), System.Folder.Exports, fp, params)
	if err != nil {
		t.Fatalf("BuildExport (reuse): %v", err)
	}
	if path1 != path2 {
		t.Fatalf("expected identical fingerprint to reuse the same path, got %q vs %q", path1, path2)
	}
}

func TestBuildExportGzipProducesValidGzipStream(t *testing.T) {
	if err := Bootstrap(t.TempDir(), true); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	fp := fingerprint.Key{Mirrors: []fingerprint.MirrorSignature{{URL: "http://b.example/epg.xml"}}}
	params := ExportParams{Assembly: testAssembly(), Mappings: map[string]ChannelMapping{}, Gzip: true}

	path, err := BuildExport(context.Background(), System.Folder.Exports, fp, params)
	if err != nil {
		t.Fatalf("BuildExport: %v", err)
	}
	if !strings.HasSuffix(path, ".xml.gz") {
		t.Fatalf("expected .xml.gz extension, got %q", path)
	}

	f, err := System.VFS.Open(path)
	if err != nil {
		t.Fatalf("open built export: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("expected valid gzip stream: %v", err)
	}
	defer gr.Close()
	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(body), "<tv ") {
		t.Errorf("expected decompressed XMLTV body, got:\n%s", body)
	}
}

func TestBuildExportDifferentKindsProduceDifferentPaths(t *testing.T) {
	if err := Bootstrap(t.TempDir(), true); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	fp := fingerprint.Key{Mirrors: []fingerprint.MirrorSignature{{URL: "http://c.example/epg.xml"}}}
	params := ExportParams{Assembly: testAssembly(), Mappings: map[string]ChannelMapping{}}

	xmlPath, err := BuildExport(context.Background(), System.Folder.Exports, fp, params)
	if err != nil {
		t.Fatalf("BuildExport xml: %v", err)
	}
	params.Gzip = true
	gzPath, err := BuildExport(context.Background(), System.Folder.Exports, fp, params)
	if err != nil {
		t.Fatalf("BuildExport gz: %v", err)
	}
	if xmlPath == gzPath {
		t.Fatalf("expected distinct paths for xml vs gz export kinds, got %q for both", xmlPath)
	}
}
