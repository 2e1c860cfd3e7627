package core

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"epgviewer/internal/fingerprint"
	"epgviewer/internal/timeshift"
)

// ExportParams bundles everything one export build needs: the assembled
// schedules plus enough of the settings/mapping state to drive the
// TimeShiftEngine and name the output.
type ExportParams struct {
	Assembly        Assembly
	Mappings        map[string]ChannelMapping
	ForceZeroOffset bool
	Gzip            bool
	GeneratorName   string
}

// RenderXMLTV writes a complete XMLTV document to w, one <channel> per
// ordered assembly header followed by every programme for that channel in
// start order. The writer side shares the internal/xmltv vocabulary with
// the streaming parser so a round trip is exact apart from whitespace and
// attribute ordering.
func RenderXMLTV(w io.Writer, p ExportParams) error {
	bw := bufio.NewWriter(w)

	generator := p.GeneratorName
	if generator == "" {
		generator = "epg-viewer"
	}
	fmt.Fprintf(bw, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<!DOCTYPE tv SYSTEM \"xmltv.dtd\">\n<tv generator-info-name=%s>\n", quoteAttr(generator))

	engine := timeshift.Engine{}

	for _, ch := range p.Assembly.Channels {
		m := p.Mappings[ch.ID]
		displayName := ch.DisplayName
		if displayName == "" {
			displayName = ch.ID
		}
		fmt.Fprintf(bw, "  <channel id=%s>\n", quoteAttr(ch.ID))
		fmt.Fprintf(bw, "    <display-name>%s</display-name>\n", escapeText(displayName))
		if ch.IconURL != "" {
			fmt.Fprintf(bw, "    <icon src=%s/>\n", quoteAttr(ch.IconURL))
		}
		bw.WriteString("  </channel>\n")

		for _, prog := range p.Assembly.Schedules[ch.ID] {
			mode := timeshift.ModeWall
			if m.ShiftMode == string(timeshift.ModeOffset) {
				mode = timeshift.ModeOffset
			}
			start, err := engine.Format(timeshift.Params{
				UTC:             prog.StartUTC,
				Raw:             prog.StartRaw,
				ZoneID:          m.ZoneID,
				OffsetMinutes:   m.OffsetMinutes,
				Mode:            mode,
				ForceZeroOffset: p.ForceZeroOffset,
			})
			if err != nil {
				return fmt.Errorf("core: render %s: %w", ch.ID, err)
			}

			attrs := fmt.Sprintf(" start=%s channel=%s", quoteAttr(start), quoteAttr(ch.ID))
			if prog.HasStop() {
				stop, err := engine.Format(timeshift.Params{
					UTC:             prog.StopUTC,
					Raw:             prog.StopRaw,
					ZoneID:          m.ZoneID,
					OffsetMinutes:   m.OffsetMinutes,
					Mode:            mode,
					ForceZeroOffset: p.ForceZeroOffset,
				})
				if err != nil {
					return fmt.Errorf("core: render %s: %w", ch.ID, err)
				}
				attrs += fmt.Sprintf(" stop=%s", quoteAttr(stop))
			}

			fmt.Fprintf(bw, "  <programme%s>\n", attrs)
			if prog.Title != "" {
				fmt.Fprintf(bw, "    <title>%s</title>\n", escapeText(prog.Title))
			}
			if prog.Description != "" {
				fmt.Fprintf(bw, "    <desc>%s</desc>\n", escapeText(prog.Description))
			}
			if prog.Category != "" {
				fmt.Fprintf(bw, "    <category>%s</category>\n", escapeText(prog.Category))
			}
			if prog.IconURL != "" {
				fmt.Fprintf(bw, "    <icon src=%s/>\n", quoteAttr(prog.IconURL))
			}
			bw.WriteString("  </programme>\n")
		}
	}

	bw.WriteString("</tv>\n")
	return bw.Flush()
}

func escapeText(s string) string {
	var buf []byte
	w := &sliceWriter{buf: &buf}
	xml.EscapeText(w, []byte(s))
	return string(buf)
}

// quoteAttr renders s as a double-quoted XML attribute value, additionally
// escaping '"' too (xml.EscapeText alone does not quote the value).
func quoteAttr(s string) string {
	return "\"" + escapeText(s) + "\""
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// BuildExport applies the fingerprint reuse rule: if the cache file named by
// fp already exists and is valid (> 100 bytes), it is reused as-is;
// otherwise RenderXMLTV streams a fresh artifact to a temp file that is
// renamed into place atomically on success.
func BuildExport(ctx context.Context, exportsDir string, fp fingerprint.Key, p ExportParams) (string, error) {
	kind := fingerprint.KindExportXML
	ext := ".xml"
	if p.Gzip {
		kind = fingerprint.KindExportGz
		ext = ".xml.gz"
	}
	fp.Kind = kind

	hash, err := fp.Hash()
	if err != nil {
		return "", fmt.Errorf("core: fingerprint export: %w", err)
	}
	path := exportsDir + "/" + hash + ext

	if info, err := System.VFS.Stat(path); err == nil && info.Size() > 100 {
		return path, nil
	}

	tmp := path + ".tmp"
	f, err := System.VFS.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("core: create export temp file: %w", err)
	}

	var out io.Writer = f
	var gz *gzip.Writer
	if p.Gzip {
		gz, err = gzip.NewWriterLevel(f, 6)
		if err != nil {
			f.Close()
			System.VFS.Remove(tmp)
			return "", fmt.Errorf("core: gzip writer: %w", err)
		}
		out = gz
	}

	if err := ctx.Err(); err != nil {
		f.Close()
		System.VFS.Remove(tmp)
		return "", err
	}

	if err := RenderXMLTV(out, p); err != nil {
		f.Close()
		System.VFS.Remove(tmp)
		return "", err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			System.VFS.Remove(tmp)
			return "", fmt.Errorf("core: close gzip writer: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		System.VFS.Remove(tmp)
		return "", fmt.Errorf("core: close export temp file: %w", err)
	}
	if err := System.VFS.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("core: rename export into place: %w", err)
	}
	return path, nil
}
