package xmltv

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Sink receives parsed records as the document streams by. OnChannel and
// OnProgramme are called in document order; each Programme/Channel value is
// built fresh for its call, so a sink may keep it.
type Sink struct {
	OnChannel   func(Channel)
	OnProgramme func(Programme)
}

// Options controls what a parse pass accepts.
type Options struct {
	// AllowedIDs restricts programmes to these normalized channel ids. A nil
	// or empty set accepts every channel.
	AllowedIDs map[string]struct{}
	Window     Window
	// LimitProgrammes stops the pass after this many programme elements have
	// been observed (before filtering). Zero means "channels only".
	LimitProgrammes int
	// NoLimit disables LimitProgrammes entirely (unbounded); set this
	// instead of a large LimitProgrammes to make the intent explicit.
	NoLimit bool
}

// NormalizeID applies the trim+lowercase comparison rule used to match
// channel ids across documents.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// rawChannel/rawProgramme mirror the XMLTV element vocabulary this system
// understands. encoding/xml matches struct tags case-sensitively, so Parse
// matches the <channel>/<programme> element names and their attributes by
// hand, case-insensitively. The child elements (display-name, icon, title,
// desc, category) and the icon's src attribute are decoded through these
// struct tags and are recognised only when written in lowercase.
type rawChannel struct {
	DisplayName string `xml:"display-name"`
	Icon        struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type rawProgramme struct {
	Title    string `xml:"title"`
	Desc     string `xml:"desc"`
	Category string `xml:"category"`
	Icon     struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

// Parse streams an XMLTV document from r, invoking sink callbacks in
// document order. It is a true pull parser: at most one channel or
// programme element is materialized at a time, so memory is bounded
// regardless of input size. A fatal error (malformed XML) is returned after
// any partial emissions already delivered to sink remain valid.
func Parse(ctx context.Context, r io.Reader, opts Options, sink Sink) error {
	decoder := xml.NewDecoder(r)
	programmesSeen := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xmltv: parse error: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch strings.ToLower(start.Name.Local) {
		case "channel":
			id := attrValue(start, "id")
			var raw rawChannel
			if err := decoder.DecodeElement(&raw, &start); err != nil {
				return fmt.Errorf("xmltv: malformed channel: %w", err)
			}
			if id == "" {
				continue
			}
			if sink.OnChannel != nil {
				sink.OnChannel(Channel{
					ID:          id,
					DisplayName: raw.DisplayName,
					IconURL:     raw.Icon.Src,
				})
			}

		case "programme":
			// "observed" counts every programme tag encountered, before any
			// filtering. Once the limit is reached the element is skipped
			// (not decoded) but the document keeps streaming so any later
			// <channel> elements are still emitted.
			if !opts.NoLimit && programmesSeen >= opts.LimitProgrammes {
				programmesSeen++
				if err := decoder.Skip(); err != nil {
					return fmt.Errorf("xmltv: skip programme: %w", err)
				}
				continue
			}
			programmesSeen++

			channelID := attrValue(start, "channel")
			startRaw := attrValue(start, "start")
			stopRaw := attrValue(start, "stop")

			var raw rawProgramme
			if err := decoder.DecodeElement(&raw, &start); err != nil {
				return fmt.Errorf("xmltv: malformed programme: %w", err)
			}

			startUTC, _, _, perr := ParseTimestamp(startRaw)
			if perr != nil {
				continue // unparseable start timestamp: drop
			}

			var stopUTC time.Time
			if stopRaw != "" {
				if t, _, _, err := ParseTimestamp(stopRaw); err == nil {
					stopUTC = t
				} else {
					stopRaw = "" // unparseable stop is treated as absent
				}
			}

			if len(opts.AllowedIDs) > 0 {
				if _, ok := opts.AllowedIDs[NormalizeID(channelID)]; !ok {
					continue
				}
			}
			if !opts.Window.Overlaps(startUTC, stopUTC) {
				continue
			}

			if sink.OnProgramme != nil {
				sink.OnProgramme(Programme{
					ChannelID:   channelID,
					StartUTC:    startUTC,
					StopUTC:     stopUTC,
					StartRaw:    startRaw,
					StopRaw:     stopRaw,
					Title:       raw.Title,
					Description: raw.Desc,
					Category:    raw.Category,
					IconURL:     raw.Icon.Src,
				})
			}
		}
	}
}

// attrValue looks up an attribute by local name, case-insensitively.
func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}

// OpenAutoDecompress wraps r, transparently gunzipping when gzip is
// indicated by any of: contentEncoding == "gzip", contentType containing
// "gzip", or name ending in ".gz". It also sniffs the gzip magic bytes as a
// fallback for sources with no usable headers (e.g. local files opened
// without a name match).
func OpenAutoDecompress(r io.Reader, name, contentType, contentEncoding string) (io.ReadCloser, error) {
	looksGzip := strings.EqualFold(contentEncoding, "gzip") ||
		strings.Contains(strings.ToLower(contentType), "gzip") ||
		strings.HasSuffix(strings.ToLower(name), ".gz")

	br := bufio.NewReader(r)
	if !looksGzip {
		if peek, err := br.Peek(2); err == nil && len(peek) == 2 && peek[0] == 0x1f && peek[1] == 0x8b {
			looksGzip = true
		}
	}

	if !looksGzip {
		return readCloser{br}, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("xmltv: gzip: %w", err)
	}
	return gz, nil
}

type readCloser struct {
	io.Reader
}

func (readCloser) Close() error { return nil }
