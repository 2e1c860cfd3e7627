package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/avfs/avfs/vfs/memfs"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := New(memfs.New(), "/cache", nil)
	c.Set("k1", json.RawMessage(`{"a":1}`), time.Minute)

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestGetPromotesFromDiskOnMemoryMiss(t *testing.T) {
	c := New(memfs.New(), "/cache", nil)
	c.Set("k1", json.RawMessage(`{"a":1}`), time.Minute)

	// Simulate a fresh process: new Cache sharing the same vfs/dir, so
	// memory is empty but the disk tier still has the value.
	c2 := New(c.vfs, "/cache", nil)
	got, ok := c2.Get("k1")
	if !ok {
		t.Fatal("expected disk-tier hit")
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected payload: %s", got)
	}

	// And now memory on c2 should be warm.
	c2.mu.Lock()
	_, inMem := c2.mem["k1"]
	c2.mu.Unlock()
	if !inMem {
		t.Fatal("expected value promoted into memory after disk load")
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := New(memfs.New(), "/cache", nil)
	c.Set("k1", json.RawMessage(`{}`), MinTTL)
	time.Sleep(MinTTL + 50*time.Millisecond)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestSetClampsTTLToMinimum(t *testing.T) {
	c := New(memfs.New(), "/cache", nil)
	c.Set("k1", json.RawMessage(`{}`), 0)

	c.mu.Lock()
	e := c.mem["k1"]
	c.mu.Unlock()
	if e.ExpiresAt.Before(time.Now()) {
		t.Fatal("expected ttl to be clamped up to at least MinTTL, not already expired")
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New(memfs.New(), "/cache", nil)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestDiskWriteFailureIsNonFatal(t *testing.T) {
	var logged string
	// A directory path that collides with a file name forces MkdirAll to
	// fail, exercising the best-effort disk-write path.
	c := New(memfs.New(), "/cache", func(msg string) { logged = msg })
	c.vfs.Create("/cache") // occupies the path as a file, not a dir
	c.Set("k1", json.RawMessage(`{}`), time.Minute)

	if logged == "" {
		t.Fatal("expected disk write failure to be logged")
	}
	// The memory tier must still have succeeded.
	if _, ok := c.Get("k1"); !ok {
		t.Fatal("expected memory tier to hold the value despite disk failure")
	}
}
