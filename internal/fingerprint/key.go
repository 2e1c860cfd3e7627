// Package fingerprint builds stable content-addressed keys for cached
// artifacts (parsed schedules, rendered exports). A Key captures everything
// that can change an artifact's bytes; identical keys imply identical
// output.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Kind identifies what class of artifact a key belongs to, so kinds never
// collide even if the rest of a key happens to match.
type Kind string

const (
	KindEPG        Kind = "epg"
	KindEPGHistory Kind = "epg-history"
	KindExportGz   Kind = "export-gz"
	KindExportXML  Kind = "export-xml"
	KindChannel    Kind = "channel"
)

// MirrorSignature is the subset of a mirror entry's state that affects what
// bytes a fetch will yield: its caching headers plus the file as last
// written to disk.
type MirrorSignature struct {
	URL          string `json:"url"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Size         int64  `json:"size"`
	ModTimeUnix  int64  `json:"mtime"`
}

// MappingSignature is the relevant subset of a channel mapping: the fields
// that influence merge output and time-shifted rendering.
type MappingSignature struct {
	SourceID string `json:"source_id"`
	EPGID    string `json:"epg_id"`
	Offset   int    `json:"offset"`
	Zone     string `json:"zone,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// Window bounds the key to a specific [from, to) range; zero values mean
// unbounded.
type Window struct {
	FromUnix int64 `json:"from,omitempty"`
	ToUnix   int64 `json:"to,omitempty"`
}

// Key is the canonicalized record that gets hashed into a fingerprint. Field
// order is fixed by the struct definition and every slice is sorted before
// hashing, so two Keys built from the same logical inputs in different
// orders hash identically.
type Key struct {
	Kind           Kind               `json:"kind"`
	Mirrors        []MirrorSignature  `json:"mirrors"`
	SnapshotStamps []int64            `json:"snapshot_stamps,omitempty"`
	PlaylistIDs    []string           `json:"playlist_ids,omitempty"`
	Mappings       []MappingSignature `json:"mappings"`
	Window         Window             `json:"window"`
}

// Canonicalize sorts every order-sensitive slice in place so callers can
// build a Key by appending in whatever order they discover inputs.
func (k *Key) Canonicalize() {
	sort.Slice(k.Mirrors, func(i, j int) bool { return k.Mirrors[i].URL < k.Mirrors[j].URL })
	sort.Slice(k.Mappings, func(i, j int) bool {
		if k.Mappings[i].SourceID != k.Mappings[j].SourceID {
			return k.Mappings[i].SourceID < k.Mappings[j].SourceID
		}
		return k.Mappings[i].EPGID < k.Mappings[j].EPGID
	})
	sort.Strings(k.PlaylistIDs)
	sort.Slice(k.SnapshotStamps, func(i, j int) bool { return k.SnapshotStamps[i] < k.SnapshotStamps[j] })
}

// Hash canonicalizes k and returns its blake2b-256 digest, hex-encoded. The
// JSON encoding is the hash input; since every slice is sorted and struct
// field order is fixed by the Go type, the same logical Key always produces
// the same string regardless of build order or map iteration elsewhere in
// the caller.
func (k Key) Hash() (string, error) {
	k.Canonicalize()
	buf, err := json.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("fingerprint: encode key: %w", err)
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash panics on encode failure; only safe when k's fields are known to
// be JSON-marshalable (always true for this package's own types).
func (k Key) MustHash() string {
	h, err := k.Hash()
	if err != nil {
		panic(err)
	}
	return h
}
