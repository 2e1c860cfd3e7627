// Package playlist parses extended M3U playlists into typed PlaylistChannel
// records using an attribute scanner over EXTINF lines.
package playlist

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Channel is one parsed M3U entry.
type Channel struct {
	ID        string
	Name      string
	Group     string
	LogoURL   string
	StreamURL string
}

// Document is the result of a parse pass: the channel list plus the header's
// EPG hint, when present.
type Document struct {
	Channels []Channel
	TVGURL   string
}

var (
	extGrpRx = regexp.MustCompile(`#EXTGRP: *(.*)`)
	tvgURLRx = regexp.MustCompile(`(?i)(?:url-tvg|x-tvg-url)="([^"]*)"`)
)

// ErrNotExtendedM3U is returned for inputs that are plain M3U or an HLS
// media playlist rather than an extended M3U channel list.
var ErrNotExtendedM3U = errors.New("playlist: not an extended M3U channel list")

// Parse decodes content into a Document. Malformed channel blocks (no
// trailing URL line, or one #EXTINF directly followed by another) are
// skipped with a warning rather than aborting the whole parse.
func Parse(content string, warn func(string)) (Document, error) {
	if warn == nil {
		warn = func(string) {}
	}

	if strings.Contains(content, "#EXT-X-TARGETDURATION") || strings.Contains(content, "#EXT-X-MEDIA-SEQUENCE") {
		return Document{}, ErrNotExtendedM3U
	}
	if !strings.Contains(content, "#EXTM3U") {
		return Document{}, ErrNotExtendedM3U
	}

	var doc Document
	if m := tvgURLRx.FindStringSubmatch(content); len(m) > 1 {
		doc.TVGURL = m[1]
	}

	blocks := strings.Split(content, "#EXTINF")
	if len(blocks) > 0 {
		blocks = blocks[1:] // drop the header segment before the first #EXTINF
	}

	var lastGroup string
	for i, block := range blocks {
		attrs, name, streamURL, ok := parseBlock(block)
		if !ok {
			warn("playlist: skipping malformed block " + indexLabel(i))
			continue
		}

		if g := extGrpRx.FindStringSubmatch(block); len(g) > 1 {
			lastGroup = strings.TrimSpace(g[1])
		}

		group := attrs["group-title"]
		if group == "" {
			group = lastGroup
		}

		doc.Channels = append(doc.Channels, Channel{
			ID:        channelID(attrs, name, group, streamURL),
			Name:      name,
			Group:     group,
			LogoURL:   attrs["tvg-logo"],
			StreamURL: streamURL,
		})
	}

	return doc, nil
}

func indexLabel(i int) string {
	return "#" + strconv.Itoa(i+1)
}

// parseBlock extracts key="value" attributes, the channel name, and the
// trailing stream URL line from one #EXTINF block (the text between one
// "#EXTINF" marker and the next, or end of document).
func parseBlock(block string) (attrs map[string]string, name, streamURL string, ok bool) {
	attrs = make(map[string]string)
	lines := strings.Split(block, "\n")

	var infoLine string
	for li, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if li == 0 {
			infoLine = line
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#EXTGRP") {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			// Any directive line other than #EXTGRP before the stream URL
			// marks the block as malformed.
			return nil, "", "", false
		}
		streamURL = trimmed
		break
	}

	if streamURL == "" {
		return nil, "", "", false
	}

	name = parseAttributesAndName(infoLine, attrs)
	if name == "" {
		if v, ok := attrs["tvg-name"]; ok {
			name = v
		}
	}
	return attrs, name, streamURL, true
}

// parseAttributesAndName scans one EXTINF info line (everything after the
// literal "#EXTINF" token, including the leading ":<duration>") for
// key="value" pairs and returns the channel name found after the first
// unquoted comma.
func parseAttributesAndName(line string, attrs map[string]string) string {
	n := len(line)
	i := 0
	for i < n {
		eq := strings.IndexByte(line[i:], '=')
		if eq == -1 {
			break
		}
		eq += i
		if eq+1 >= n || line[eq+1] != '"' {
			i = eq + 1
			continue
		}
		keyStart := strings.LastIndexAny(line[i:eq], " ,")
		if keyStart == -1 {
			keyStart = i
		} else {
			keyStart += i + 1
		}
		key := line[keyStart:eq]

		valStart := eq + 2
		valEnd := strings.IndexByte(line[valStart:], '"')
		if valEnd == -1 {
			break
		}
		valEnd += valStart
		val := line[valStart:valEnd]

		attrs[strings.ToLower(key)] = val
		i = valEnd + 1
	}

	commaPos := -1
	inQuote := false
	for idx, r := range line {
		if r == '"' {
			inQuote = !inQuote
		} else if r == ',' && !inQuote {
			commaPos = idx
			break
		}
	}
	if commaPos == -1 {
		return ""
	}
	return strings.TrimSpace(line[commaPos+1:])
}

func channelID(attrs map[string]string, name, group, streamURL string) string {
	if id := attrs["tvg-id"]; id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(name + "|" + group + "|" + streamURL))
	return hex.EncodeToString(sum[:])[:16]
}
