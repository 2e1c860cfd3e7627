package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"epgviewer/internal/fingerprint"
	"epgviewer/internal/playlist"
	"epgviewer/internal/xmltv"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// resolvedChannels fetches and parses the playlist at url, returning its
// channels plus the default EPG URL candidate its header carries.
func (s *Server) resolvedChannels(ctx context.Context, url string) (playlist.Document, error) {
	res, err := s.mirror.Fetch(ctx, url)
	if err != nil {
		return playlist.Document{}, err
	}
	f, err := System.VFS.Open(res.Path)
	if err != nil {
		return playlist.Document{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return playlist.Document{}, err
	}
	return playlist.Parse(string(content), func(msg string) { showWarning("playlist", msg) })
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "channels")
	defer span.End()

	playlistURL := r.URL.Query().Get("playlist")
	if playlistURL == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("missing playlist parameter"))
		return
	}

	doc, err := s.resolvedChannels(ctx, playlistURL)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": doc.Channels,
		"epg_url":  doc.TVGURL,
	})
}

// windowFromQuery implements the pastDays/futureDays/full query convention
// shared by /api/epg and the export endpoints: full=1 means no window
// restriction, and when pastDays, futureDays and full are all absent the
// settings' PastDays/FutureDays defaults apply. renderExport handles absent
// window parameters itself before calling this.
func windowFromQuery(q map[string][]string, fallback SettingsStruct) xmltv.Window {
	get := func(key string) (int, bool) {
		vals, ok := q[key]
		if !ok || len(vals) == 0 || vals[0] == "" {
			return 0, false
		}
		n, err := strconv.Atoi(vals[0])
		if err != nil {
			return 0, false
		}
		return n, true
	}

	full := false
	if vals, ok := q["full"]; ok && len(vals) > 0 && vals[0] == "1" {
		full = true
	}

	pastDays, hasPast := get("pastDays")
	futureDays, hasFuture := get("futureDays")
	if !hasPast && !hasFuture && !full {
		pastDays, futureDays = fallback.PastDays, fallback.FutureDays
	} else if full {
		return xmltv.Window{NoWindow: true}
	}

	now := time.Now().UTC()
	return xmltv.Window{
		From: now.AddDate(0, 0, -pastDays).Truncate(24 * time.Hour),
		To:   now.AddDate(0, 0, futureDays+1).Truncate(24 * time.Hour),
	}
}

// buildAssembly resolves the playlist and EPG URLs, plans the merge groups,
// and returns the resulting Assembly, either served from the schedule cache
// or freshly assembled and cached for next time. It also returns the
// resolved channels and merge groups so callers building a further
// downstream fingerprint (the export cache) don't have to re-resolve them.
func (s *Server) buildAssembly(ctx context.Context, playlistURL, epgURL string, window xmltv.Window, historyEnabled bool) (Assembly, []playlist.Channel, []MergeGroup, error) {
	snap := s.settings.Snapshot()

	var channels []playlist.Channel
	if playlistURL != "" {
		doc, err := s.resolvedChannels(ctx, playlistURL)
		if err != nil {
			return Assembly{}, nil, nil, err
		}
		channels = doc.Channels
		if epgURL == "" && snap.Settings.UsePlaylistEPG {
			epgURL = doc.TVGURL
		}
	}
	if epgURL == "" {
		epgURL = snap.Settings.EPGURL
	}

	groups := PlanMerge(channels, snap.Mappings, snap.Sources, epgURL)

	fp := assembleFingerprint(s.mirror, groups, channels, snap.Mappings, window)
	fp.Kind = fingerprint.KindEPG
	if historyEnabled {
		fp.Kind = fingerprint.KindEPGHistory
	}
	key, hashErr := fp.Hash()

	if hashErr == nil {
		if raw, ok := s.scheduleCache.Get(key); ok {
			var cached Assembly
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, channels, groups, nil
			}
		}
	}

	assembly := Assemble(ctx, s.mirror, AssembleParams{
		Groups:         groups,
		Window:         window,
		Mappings:       snap.Mappings,
		HistoryEnabled: historyEnabled,
	})

	if hashErr == nil {
		if raw, err := json.Marshal(assembly); err == nil {
			ttl := time.Duration(snap.Settings.ArtifactCacheTTLS) * time.Second
			s.scheduleCache.Set(key, raw, ttl)
		}
	}

	return assembly, channels, groups, nil
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "epg")
	defer span.End()

	snap := s.settings.Snapshot()
	window := windowFromQuery(r.URL.Query(), snap.Settings)

	assembly, _, _, err := s.buildAssembly(ctx, r.URL.Query().Get("playlist"), r.URL.Query().Get("epg"), window, snap.Settings.HistoryBackfill)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, assembly)
}

func (s *Server) handleEPGChannel(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "epg_channel")
	defer span.End()

	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("missing id parameter"))
		return
	}

	snap := s.settings.Snapshot()
	window := parseFromTo(r, snap.Settings)

	assembly, _, _, err := s.buildAssembly(ctx, r.URL.Query().Get("playlist"), "", window, snap.Settings.HistoryBackfill)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}

	progs := assembly.Schedules[id]
	fp := fingerprint.Key{Kind: fingerprint.KindChannel, PlaylistIDs: []string{id}, Window: fingerprint.Window{FromUnix: unixOrZero(window.From), ToUnix: unixOrZero(window.To)}}
	etag, err := fp.Hash()
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "programmes": progs})
}

func parseFromTo(r *http.Request, fallback SettingsStruct) xmltv.Window {
	parse := func(key string) (time.Time, bool) {
		v := r.URL.Query().Get(key)
		if v == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	}
	from, okFrom := parse("from")
	to, okTo := parse("to")
	if !okFrom || !okTo {
		now := time.Now().UTC()
		return xmltv.Window{
			From: now.AddDate(0, 0, -fallback.PastDays).Truncate(24 * time.Hour),
			To:   now.AddDate(0, 0, fallback.FutureDays+1).Truncate(24 * time.Hour),
		}
	}
	return xmltv.Window{From: from, To: to}
}

// renderExport serves one rendered XMLTV artifact, routed through the same
// fingerprint-and-reuse path PrewarmScheduler uses: identical inputs hash to
// the same cache/exports/<fingerprint> file, so a second request for the
// same assembly is served straight off disk without re-parsing or
// re-rendering. With neither pastDays nor futureDays given, the export is
// full (no window restriction).
func (s *Server) renderExport(w http.ResponseWriter, r *http.Request, gz bool) {
	ctx, span := startSpan(r.Context(), "export")
	defer span.End()

	snap := s.settings.Snapshot()
	q := r.URL.Query()
	window := windowFromQuery(q, snap.Settings)
	if q.Get("pastDays") == "" && q.Get("futureDays") == "" {
		window = xmltv.Window{NoWindow: true}
	}

	assembly, channels, groups, err := s.buildAssembly(ctx, q.Get("playlist"), q.Get("epg"), window, snap.Settings.HistoryBackfill)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}

	fp := assembleFingerprint(s.mirror, groups, channels, snap.Mappings, window)
	path, err := BuildExport(ctx, System.Folder.Exports, fp, ExportParams{
		Assembly:        assembly,
		Mappings:        snap.Mappings,
		ForceZeroOffset: snap.Settings.ForceZeroOffset,
		Gzip:            gz,
		GeneratorName:   "epg-viewer export",
	})
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	f, err := System.VFS.Open(path)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	filename := q.Get("filename")
	if filename == "" {
		filename = "epg.xml"
		if gz {
			filename += ".gz"
		}
	}

	if gz {
		w.Header().Set("Content-Type", "application/gzip")
	} else {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if _, err := io.Copy(w, f); err != nil {
		span.RecordError(err)
		ShowError("export", err)
	}
}

func (s *Server) handleExportGz(w http.ResponseWriter, r *http.Request)  { s.renderExport(w, r, true) }
func (s *Server) handleExportXML(w http.ResponseWriter, r *http.Request) { s.renderExport(w, r, false) }

// handleExportByFingerprint serves a previously built artifact straight off
// disk given the fingerprint a prewarm job reported in its ExportURL. It
// tries the gzip path first since that is what /api/export/prewarm builds.
func (s *Server) handleExportByFingerprint(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("fingerprint")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("missing fingerprint parameter"))
		return
	}

	path := System.Folder.Exports + "/" + key + ".xml.gz"
	contentType := "application/gzip"
	if _, err := System.VFS.Stat(path); err != nil {
		path = System.Folder.Exports + "/" + key + ".xml"
		contentType = "application/xml; charset=utf-8"
	}

	f, err := System.VFS.Open(path)
	if err != nil {
		httpStatusError(w, http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	io.Copy(w, f)
}

type prewarmRequestBody struct {
	PastDays   int    `json:"pastDays"`
	FutureDays int    `json:"futureDays"`
	Playlist   string `json:"playlist"`
	EPG        string `json:"epg"`
	Full       bool   `json:"full"`
}

func (s *Server) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "prewarm")
	defer span.End()

	var body prewarmRequestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	snap := s.settings.Snapshot()

	var window xmltv.Window
	if body.Full {
		window = xmltv.Window{NoWindow: true}
	} else {
		now := time.Now().UTC()
		window = xmltv.Window{
			From: now.AddDate(0, 0, -body.PastDays).Truncate(24 * time.Hour),
			To:   now.AddDate(0, 0, body.FutureDays+1).Truncate(24 * time.Hour),
		}
	}

	var channels []playlist.Channel
	epgURL := body.EPG
	if body.Playlist != "" {
		doc, err := s.resolvedChannels(ctx, body.Playlist)
		if err != nil {
			span.RecordError(err)
			writeJSONError(w, http.StatusBadGateway, err)
			return
		}
		channels = doc.Channels
		if epgURL == "" && snap.Settings.UsePlaylistEPG {
			epgURL = doc.TVGURL
		}
	}
	if epgURL == "" {
		epgURL = snap.Settings.EPGURL
	}

	key := s.prewarm.Prewarm(ctx, PrewarmRequest{
		Channels:        channels,
		DefaultEPGURL:   epgURL,
		Sources:         snap.Sources,
		Mappings:        snap.Mappings,
		Window:          window,
		HistoryEnabled:  snap.Settings.HistoryBackfill,
		Gzip:            true,
		ForceZeroOffset: snap.Settings.ForceZeroOffset,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"key":       key,
		"started":   true,
		"exportUrl": "/api/export/status?key=" + key,
	})
}

func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("missing key parameter"))
		return
	}
	status, ok := s.prewarm.Status(key)
	if !ok {
		httpStatusError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot().Settings)
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	var incoming SettingsStruct
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&incoming); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	err := s.settings.Update(func(st *State) error {
		uuid := st.Settings.UUID
		st.Settings = incoming
		if st.Settings.UUID == "" {
			st.Settings.UUID = uuid
		}
		return nil
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Snapshot().Settings)
}

func (s *Server) handleSourcesGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot().Sources)
}

func (s *Server) handleSourcesPost(w http.ResponseWriter, r *http.Request) {
	var src Source
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&src); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if src.ID == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("missing source id"))
		return
	}
	err := s.settings.Update(func(st *State) error {
		st.Sources[src.ID] = src
		return nil
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleSourceDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.settings.Update(func(st *State) error {
		delete(st.Sources, id)
		return nil
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSourceRescan(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "source_rescan")
	defer span.End()

	id := r.PathValue("id")
	snap := s.settings.Snapshot()
	src, ok := snap.Sources[id]
	if !ok {
		httpStatusError(w, http.StatusNotFound)
		return
	}

	doc, err := s.resolvedChannels(ctx, src.URL)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}

	path := System.Folder.Source + "/" + id + ".json"
	buf, err := json.Marshal(doc.Channels)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	tmp := path + ".tmp"
	f, err := System.VFS.Create(tmp)
	if err == nil {
		if _, werr := f.Write(buf); werr == nil {
			f.Close()
			System.VFS.Rename(tmp, path)
		} else {
			f.Close()
			System.VFS.Remove(tmp)
		}
	}

	err = s.settings.Update(func(st *State) error {
		updated := st.Sources[id]
		updated.ChannelCount = len(doc.Channels)
		updated.LastScannedAt = time.Now().Unix()
		st.Sources[id] = updated
		return nil
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"channel_count": len(doc.Channels)})
}

func (s *Server) handleSourceChannels(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := System.Folder.Source + "/" + id + ".json"
	f, err := System.VFS.Open(path)
	if err != nil {
		httpStatusError(w, http.StatusNotFound)
		return
	}
	defer f.Close()

	var channels []playlist.Channel
	if err := json.NewDecoder(f).Decode(&channels); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleMappingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot().Mappings)
}

func (s *Server) handleMappingsPost(w http.ResponseWriter, r *http.Request) {
	var bulk map[string]ChannelMapping
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&bulk); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	err := s.settings.Update(func(st *State) error {
		for id, m := range bulk {
			st.Mappings[id] = m
		}
		return nil
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings.Snapshot().Mappings)
}
