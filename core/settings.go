package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Source is one upstream EPG/M3U provider, persisted by id.
type Source struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Enabled       bool   `json:"enabled"`
	Priority      int    `json:"priority"`
	LastScannedAt int64  `json:"last_scanned_at,omitempty"`
	ChannelCount  int    `json:"channel_count,omitempty"`
}

// ChannelMapping binds one playlist channel to a source and a time-shift
// configuration.
type ChannelMapping struct {
	SourceID      string `json:"source_id,omitempty"`
	EPGChannelID  string `json:"epg_channel_id,omitempty"`
	OffsetMinutes int    `json:"offset_minutes,omitempty"`
	ZoneID        string `json:"zone_id,omitempty"`
	ShiftMode     string `json:"shift_mode,omitempty"` // "wall" (default) or "offset"
}

// SettingsStruct holds process-wide tunables, persisted alongside sources
// and mappings.
type SettingsStruct struct {
	UUID                 string `json:"uuid"`
	Port                 string `json:"port"`
	UserAgent            string `json:"user_agent"`
	PlaylistURL          string `json:"playlist_url,omitempty"`
	EPGURL               string `json:"epg_url,omitempty"`
	UsePlaylistEPG       bool   `json:"use_playlist_epg"`
	PastDays             int    `json:"past_days"`
	FutureDays           int    `json:"future_days"`
	HistoryBackfill      bool   `json:"history_backfill"`
	HistoryRetentionDays int    `json:"history_retention_days"`
	KeepMaxSnapshots     int    `json:"keep_max_snapshots"`
	ForceZeroOffset      bool   `json:"force_zero_offset"`
	ArtifactCacheTTLS    int    `json:"artifact_cache_ttl_seconds"`
}

// State is the full persisted document: settings plus the Source and
// ChannelMapping sets, keyed by id (Source by id, ChannelMapping by
// playlist channel id).
type State struct {
	Settings SettingsStruct            `json:"settings"`
	Sources  map[string]Source         `json:"sources"`
	Mappings map[string]ChannelMapping `json:"mappings"`
}

func defaultState() State {
	return State{
		Settings: SettingsStruct{
			UUID:                 uuid.NewString(),
			Port:                 "3333",
			UserAgent:            "epg-viewer/1.0",
			UsePlaylistEPG:       true,
			PastDays:             0,
			FutureDays:           3,
			HistoryBackfill:      false,
			HistoryRetentionDays: 21,
			KeepMaxSnapshots:     40,
			ForceZeroOffset:      true,
			ArtifactCacheTTLS:    600,
		},
		Sources:  make(map[string]Source),
		Mappings: make(map[string]ChannelMapping),
	}
}

// SettingsStore guards one State behind a single RWMutex and persists it
// atomically on every Update.
type SettingsStore struct {
	mu    sync.RWMutex
	state State
	path  string
}

// LoadSettingsStore loads path, or persists a default State there if it
// does not exist yet, before the caller starts accepting requests.
func LoadSettingsStore(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path}

	f, err := System.VFS.Open(path)
	if err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("core: open settings: %w", err)
		}
		s.state = defaultState()
		if err := s.persist(s.state); err != nil {
			return nil, fmt.Errorf("core: persist default settings: %w", err)
		}
		return s, nil
	}
	defer f.Close()

	var st State
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return nil, fmt.Errorf("core: decode settings: %w", err)
	}
	if st.Sources == nil {
		st.Sources = make(map[string]Source)
	}
	if st.Mappings == nil {
		st.Mappings = make(map[string]ChannelMapping)
	}
	s.state = st
	return s, nil
}

// Snapshot returns a deep copy of the current state, safe for a reader to
// inspect without a torn view across fields.
func (s *SettingsStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// Update runs fn under the write lock against a working copy; on success it
// persists the whole file atomically and swaps it in. A failing fn or a
// failing persist leaves the stored state untouched.
func (s *SettingsStore) Update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := cloneState(s.state)
	if err := fn(&working); err != nil {
		return err
	}
	if err := s.persist(working); err != nil {
		return fmt.Errorf("core: persist settings: %w", err)
	}
	s.state = working
	return nil
}

func (s *SettingsStore) persist(st State) error {
	buf, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := System.VFS.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		System.VFS.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return System.VFS.Rename(tmp, s.path)
}

func cloneState(st State) State {
	out := State{
		Settings: st.Settings,
		Sources:  make(map[string]Source, len(st.Sources)),
		Mappings: make(map[string]ChannelMapping, len(st.Mappings)),
	}
	for k, v := range st.Sources {
		out.Sources[k] = v
	}
	for k, v := range st.Mappings {
		out.Mappings[k] = v
	}
	return out
}
