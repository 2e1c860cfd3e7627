// Package cache implements the ArtifactCache: a two-tier (memory + disk) TTL
// cache keyed by stable fingerprints, used for parsed schedules and rendered
// exports. Like internal/mirror, disk access goes through an injected
// avfs.VFS.
package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/avfs/avfs"
)

// DefaultTTL is the cache's default entry lifetime; MinTTL is the floor
// every Set call clamps to.
const (
	DefaultTTL = 10 * time.Minute
	MinTTL     = time.Second
)

type entry struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (e entry) expired(now time.Time) bool { return now.After(e.ExpiresAt) }

// Cache is the two-tier artifact cache. The zero value is not usable; build
// one with New.
type Cache struct {
	vfs avfs.VFS
	dir string
	log func(string)

	mu  sync.Mutex
	mem map[string]entry
}

// New builds a Cache whose disk tier lives under dir. logger may be nil;
// disk write failures are reported through it and otherwise swallowed —
// disk writes are best-effort.
func New(vfs avfs.VFS, dir string, logger func(string)) *Cache {
	return &Cache{
		vfs: vfs,
		dir: dir,
		log: logger,
		mem: make(map[string]entry),
	}
}

func (c *Cache) logf(format string, args ...any) {
	if c.log == nil {
		return
	}
	c.log(fmt.Sprintf(format, args...))
}

func (c *Cache) diskPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the raw JSON bytes stored under key. It checks memory first;
// on a miss it attempts to load from disk and, if found and unexpired,
// promotes the value back into memory.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.mem[key]; ok {
		c.mu.Unlock()
		if e.expired(now) {
			return nil, false
		}
		return e.Data, true
	}
	c.mu.Unlock()

	e, ok := c.loadDisk(key)
	if !ok || e.expired(now) {
		return nil, false
	}

	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return e.Data, true
}

// Set stores data under key with the given ttl (clamped to at least MinTTL)
// in both tiers. A disk write failure is logged, never returned.
func (c *Cache) Set(key string, data json.RawMessage, ttl time.Duration) {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	e := entry{Data: data, ExpiresAt: time.Now().Add(ttl)}

	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()

	if err := c.saveDisk(key, e); err != nil {
		c.logf("cache: disk write failed for %s: %v", key, err)
	}
}

// SetDefaultTTL is a convenience wrapper around Set using DefaultTTL.
func (c *Cache) SetDefaultTTL(key string, data json.RawMessage) {
	c.Set(key, data, DefaultTTL)
}

func (c *Cache) loadDisk(key string) (entry, bool) {
	f, err := c.vfs.Open(c.diskPath(key))
	if err != nil {
		return entry{}, false
	}
	defer f.Close()
	var e entry
	if err := json.NewDecoder(f).Decode(&e); err != nil {
		return entry{}, false
	}
	return e, true
}

func (c *Cache) saveDisk(key string, e entry) error {
	if err := c.vfs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp := c.diskPath(key) + ".tmp"
	f, err := c.vfs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		c.vfs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return c.vfs.Rename(tmp, c.diskPath(key))
}
