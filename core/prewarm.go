package core

import (
	"context"
	"sync"
	"time"

	"epgviewer/internal/fingerprint"
	"epgviewer/internal/mirror"
	"epgviewer/internal/playlist"
	"epgviewer/internal/xmltv"
)

// JobStatus is one PrewarmScheduler job's status record.
type JobStatus struct {
	Status     string `json:"status"` // queued, running, done, error
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at,omitempty"`
	ExportURL  string `json:"export_url,omitempty"`
	ExportPath string `json:"export_path,omitempty"`
	AliasKey   string `json:"alias_key,omitempty"`
}

// PrewarmRequest is everything one export build needs, independent of any
// particular HTTP request — the same shape the assembler/export pipeline
// consumes.
type PrewarmRequest struct {
	Channels        []playlist.Channel
	DefaultEPGURL   string
	Sources         map[string]Source
	Mappings        map[string]ChannelMapping
	Window          xmltv.Window
	HistoryEnabled  bool
	Gzip            bool
	ForceZeroOffset bool
}

// PrewarmScheduler is a job map guarded by one mutex, keyed first by a
// transient request key and, once the real fingerprint is known,
// also by that fingerprint key — both resolve to the same *job record so a
// caller polling the transient key sees the same progress as one polling the
// final fingerprint.
type PrewarmScheduler struct {
	store      *mirror.Store
	exportsDir string

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	mu     sync.Mutex
	status JobStatus
}

// NewPrewarmScheduler builds a scheduler backed by store for mirror fetches
// and exportsDir for the rendered artifact tree.
func NewPrewarmScheduler(store *mirror.Store, exportsDir string) *PrewarmScheduler {
	return &PrewarmScheduler{store: store, exportsDir: exportsDir, jobs: make(map[string]*job)}
}

// TransientKey computes the request-shaped key a caller can poll before the
// real fingerprint is known. It is stable across calls for the
// same logical request but does not attempt to predict the eventual
// fingerprint (which depends on mirror signatures observed only after fetch).
func TransientKey(req PrewarmRequest) string {
	k := fingerprint.Key{Kind: fingerprint.KindExportXML}
	for _, src := range req.Sources {
		k.Mirrors = append(k.Mirrors, fingerprint.MirrorSignature{URL: src.URL})
	}
	k.PlaylistIDs = playlistIDs(req.Channels)
	k.Mappings = mappingSignatures(req.Mappings)
	k.Window = fingerprint.Window{FromUnix: unixOrZero(req.Window.From), ToUnix: unixOrZero(req.Window.To)}
	return k.MustHash()
}

// Prewarm starts (or attaches to) the build for req and returns the
// transient key the caller should poll via Status. The pipeline itself runs
// on a detached goroutine; Prewarm never blocks on it.
func (ps *PrewarmScheduler) Prewarm(ctx context.Context, req PrewarmRequest) string {
	transient := TransientKey(req)

	ps.mu.Lock()
	if j, ok := ps.jobs[transient]; ok {
		ps.mu.Unlock()
		_ = j
		return transient
	}
	j := &job{status: JobStatus{Status: "queued", StartedAt: time.Now().Unix()}}
	ps.jobs[transient] = j
	ps.mu.Unlock()

	go ps.run(context.WithoutCancel(ctx), transient, j, req)
	return transient
}

// Status looks up a job by either its transient key or its resolved
// fingerprint key.
func (ps *PrewarmScheduler) Status(key string) (JobStatus, bool) {
	ps.mu.Lock()
	j, ok := ps.jobs[key]
	ps.mu.Unlock()
	if !ok {
		return JobStatus{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, true
}

func (ps *PrewarmScheduler) run(ctx context.Context, transient string, j *job, req PrewarmRequest) {
	setRunning := func(pct int, msg string) {
		j.mu.Lock()
		j.status.Status = "running"
		j.status.Percent = pct
		j.status.Message = msg
		j.mu.Unlock()
	}
	setError := func(err error) {
		j.mu.Lock()
		j.status.Status = "error"
		j.status.Message = err.Error()
		j.status.FinishedAt = time.Now().Unix()
		j.mu.Unlock()
		ShowError("prewarm", err)
	}

	setRunning(10, "planning merge groups")
	groups := PlanMerge(req.Channels, req.Mappings, req.Sources, req.DefaultEPGURL)

	setRunning(30, "fetching and assembling schedules")
	assembly := Assemble(ctx, ps.store, AssembleParams{
		Groups:         groups,
		Window:         req.Window,
		Mappings:       req.Mappings,
		HistoryEnabled: req.HistoryEnabled,
	})

	setRunning(70, "computing fingerprint")
	fp := assembleFingerprint(ps.store, groups, req.Channels, req.Mappings, req.Window)

	setRunning(85, "rendering export")
	path, err := BuildExport(ctx, ps.exportsDir, fp, ExportParams{
		Assembly:        assembly,
		Mappings:        req.Mappings,
		ForceZeroOffset: req.ForceZeroOffset,
		Gzip:            req.Gzip,
		GeneratorName:   System.Name,
	})
	if err != nil {
		setError(err)
		return
	}

	fp.Kind = fingerprint.KindExportXML
	if req.Gzip {
		fp.Kind = fingerprint.KindExportGz
	}
	finalKey, err := fp.Hash()
	if err != nil {
		setError(err)
		return
	}

	j.mu.Lock()
	j.status.Status = "done"
	j.status.Percent = 100
	j.status.Message = "ready"
	j.status.FinishedAt = time.Now().Unix()
	j.status.ExportURL = "/api/epg/export?fingerprint=" + finalKey
	j.status.ExportPath = path
	j.status.AliasKey = transient
	j.mu.Unlock()

	ps.mu.Lock()
	ps.jobs[finalKey] = j
	ps.mu.Unlock()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
