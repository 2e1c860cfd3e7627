package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"epgviewer/internal/mirror"
	"epgviewer/internal/xmltv"
)

// ChannelHeader is what the ExportRenderer needs to write one <channel>
// element: the id plus the display name and icon taken from the first EPG
// <channel> element seen for it. Playlist names and logos are not used.
type ChannelHeader struct {
	ID          string
	DisplayName string
	IconURL     string
}

// Assembly is the output of one EpgAssembler pass: ordered channel headers
// plus each channel's schedule, sorted by start time.
type Assembly struct {
	Channels  []ChannelHeader
	Schedules map[string][]xmltv.Programme // keyed by playlist channel id
}

// AssembleParams bundles one assemble request.
type AssembleParams struct {
	Groups          []MergeGroup
	Window          xmltv.Window
	Mappings        map[string]ChannelMapping
	HistoryEnabled  bool
	HistoryMaxSpan  time.Duration
}

// groupFetch is what one MergeGroup contributes after its mirror fetch and
// stream parse: the raw EPG-id-keyed schedule (before id_map translation),
// ready to be merged in document order.
type groupFetch struct {
	group      MergeGroup
	channels   map[string]xmltv.Channel
	programmes map[string][]xmltv.Programme // keyed by normalized EPG channel id
	err        error
}

// Assemble runs the concurrent mirror fetch per
// group, parallel stream-parse, merge into a per-playlist-channel schedule
// with mapping offsets pre-applied, then a per-channel sort by start time.
// A group's failure degrades that group to an empty contribution rather
// than aborting the whole assembly.
func Assemble(ctx context.Context, store *mirror.Store, params AssembleParams) Assembly {
	fetches := make([]groupFetch, len(params.Groups))
	var wg sync.WaitGroup
	for i, g := range params.Groups {
		wg.Add(1)
		go func(i int, g MergeGroup) {
			defer wg.Done()
			fetches[i] = fetchAndParse(ctx, store, g, params.Window)
		}(i, g)
	}
	wg.Wait()

	merged := map[string][]xmltv.Programme{}
	channelMeta := map[string]xmltv.Channel{}

	for _, gf := range fetches {
		if gf.err != nil {
			ShowError("assembler", gf.err)
			continue
		}
		for epgID, ch := range gf.channels {
			playlistID, ok := gf.group.IDMap[epgID]
			if !ok {
				playlistID = epgID
			}
			if _, ok := channelMeta[playlistID]; !ok {
				channelMeta[playlistID] = ch
			}
		}
		for epgID, progs := range gf.programmes {
			playlistID, ok := gf.group.IDMap[epgID]
			if !ok {
				playlistID = epgID
			}
			offset := 0
			if m, ok := params.Mappings[playlistID]; ok {
				offset = m.OffsetMinutes
			}
			for _, p := range progs {
				if offset != 0 {
					p.StartUTC = p.StartUTC.Add(time.Duration(offset) * time.Minute)
					if !p.StopUTC.IsZero() {
						p.StopUTC = p.StopUTC.Add(time.Duration(offset) * time.Minute)
					}
				}
				p.ChannelID = playlistID
				merged[playlistID] = append(merged[playlistID], p)
			}
		}
	}

	if params.HistoryEnabled {
		backfillHistory(ctx, store, params, fetches, merged)
	}

	for id := range merged {
		sort.Slice(merged[id], func(i, j int) bool {
			return merged[id][i].StartUTC.Before(merged[id][j].StartUTC)
		})
	}

	headers := make([]ChannelHeader, 0, len(channelMeta))
	for playlistID, ch := range channelMeta {
		headers = append(headers, ChannelHeader{ID: playlistID, DisplayName: ch.DisplayName, IconURL: ch.IconURL})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].ID < headers[j].ID })

	return Assembly{Channels: headers, Schedules: merged}
}

func fetchAndParse(ctx context.Context, store *mirror.Store, g MergeGroup, window xmltv.Window) groupFetch {
	result, err := store.Fetch(ctx, g.SourceURL)
	if err != nil {
		return groupFetch{group: g, err: err}
	}

	f, err := System.VFS.Open(result.Path)
	if err != nil {
		return groupFetch{group: g, err: err}
	}
	defer f.Close()

	rc, err := xmltv.OpenAutoDecompress(f, result.Path, "", boolToGzipHeader(result.Meta.IsGz))
	if err != nil {
		return groupFetch{group: g, err: err}
	}
	defer rc.Close()

	channels := map[string]xmltv.Channel{}
	programmes := map[string][]xmltv.Programme{}

	err = xmltv.Parse(ctx, rc, xmltv.Options{
		AllowedIDs: g.AllowedIDs,
		Window:     window,
		NoLimit:    true,
	}, xmltv.Sink{
		OnChannel: func(c xmltv.Channel) {
			channels[xmltv.NormalizeID(c.ID)] = c
		},
		OnProgramme: func(p xmltv.Programme) {
			key := xmltv.NormalizeID(p.ChannelID)
			programmes[key] = append(programmes[key], p)
		},
	})
	if err != nil {
		return groupFetch{group: g, err: err}
	}

	return groupFetch{group: g, channels: channels, programmes: programmes}
}

func boolToGzipHeader(isGz bool) string {
	if isGz {
		return "gzip"
	}
	return ""
}
