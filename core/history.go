package core

import (
	"context"
	"time"

	"epgviewer/internal/mirror"
	"epgviewer/internal/xmltv"
)

// backfillHistory handles history backfill: for each group whose fetch succeeded,
// walk its snapshots newest-first, stream-parsing each with the window
// clamped to "now" and de-duplicating on (playlist_id, start_raw). Stops per
// group once a snapshot contributes nothing new, or once the group's
// earliest known programme already reaches the requested window start.
func backfillHistory(ctx context.Context, store *mirror.Store, params AssembleParams, fetches []groupFetch, merged map[string][]xmltv.Programme) {
	if params.Window.From.IsZero() || !params.Window.From.Before(time.Now()) {
		return // nothing in the past to backfill
	}

	seen := make(map[string]map[string]struct{}) // playlist_id -> start_raw set
	for playlistID, progs := range merged {
		set := make(map[string]struct{}, len(progs))
		for _, p := range progs {
			set[p.StartRaw] = struct{}{}
		}
		seen[playlistID] = set
	}

	now := time.Now().UTC()
	backWindow := xmltv.Window{From: params.Window.From, To: minTime(params.Window.To, now)}

	for _, gf := range fetches {
		if gf.err != nil {
			continue
		}
		snaps, err := store.Snapshots(gf.group.SourceURL)
		if err != nil {
			ShowError("history", err)
			continue
		}

		for _, snap := range snaps {
			added := 0
			earliest := map[string]time.Time{}

			f, err := System.VFS.Open(snap.Path)
			if err != nil {
				continue
			}
			rc, err := xmltv.OpenAutoDecompress(f, snap.Path, "", "")
			if err != nil {
				f.Close()
				continue
			}

			parseErr := xmltv.Parse(ctx, rc, xmltv.Options{
				AllowedIDs: gf.group.AllowedIDs,
				Window:     backWindow,
				NoLimit:    true,
			}, xmltv.Sink{
				OnProgramme: func(p xmltv.Programme) {
					epgID := xmltv.NormalizeID(p.ChannelID)
					playlistID, ok := gf.group.IDMap[epgID]
					if !ok {
						playlistID = epgID
					}
					set, ok := seen[playlistID]
					if !ok {
						set = make(map[string]struct{})
						seen[playlistID] = set
					}
					if _, dup := set[p.StartRaw]; dup {
						return
					}
					set[p.StartRaw] = struct{}{}

					if m, ok := params.Mappings[playlistID]; ok && m.OffsetMinutes != 0 {
						offset := time.Duration(m.OffsetMinutes) * time.Minute
						p.StartUTC = p.StartUTC.Add(offset)
						if !p.StopUTC.IsZero() {
							p.StopUTC = p.StopUTC.Add(offset)
						}
					}

					p.ChannelID = playlistID
					merged[playlistID] = append(merged[playlistID], p)
					added++
					if cur, ok := earliest[playlistID]; !ok || p.StartUTC.Before(cur) {
						earliest[playlistID] = p.StartUTC
					}
				},
			})
			rc.Close()
			f.Close()
			if parseErr != nil {
				ShowError("history", parseErr)
				continue
			}

			if added == 0 {
				break // this snapshot contributed nothing: stop walking further back
			}
			if coverageComplete(earliest, params.Window.From) {
				break
			}
		}
	}
}

func coverageComplete(earliest map[string]time.Time, from time.Time) bool {
	if len(earliest) == 0 {
		return false
	}
	for _, t := range earliest {
		if t.After(from) {
			return false
		}
	}
	return true
}

func minTime(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if a.Before(b) {
		return a
	}
	return b
}
