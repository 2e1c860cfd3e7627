// Package core implements the ambient process: settings persistence, the
// merge/assemble/export pipeline, the prewarm scheduler, and the HTTP
// surface that ties them together.
package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/avfs/avfs"
	"github.com/avfs/avfs/vfs/osfs"
)

// SystemInfo is the process-wide bootstrap record: identity, folders, and
// the flags it was started with.
type SystemInfo struct {
	Name    string
	Version string
	Build   string
	Debug   int

	Folder struct {
		Data      string
		Mirror    string
		Cache     string
		Exports   string
		Schedules string
		Source    string
		Backup    string
		Temp      string
	}

	File struct {
		Settings string
	}

	Flag struct {
		Port         string
		Debug        int
		OtelExporter string
		ConfigDir    string
	}

	VFS avfs.VFS
}

// System is the single process-wide instance, set up once by Bootstrap.
var System = &SystemInfo{
	Name:    "epg-viewer",
	Version: "1.0.0",
}

// Bootstrap resolves every data folder under dataDir, creates them, and
// wires a real on-disk avfs.VFS. virtual selects an in-memory filesystem
// instead, for tests and other short-lived processes.
func Bootstrap(dataDir string, virtual bool) error {
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	dataDir = filepath.Clean(dataDir)

	System.Folder.Data = dataDir
	System.Folder.Mirror = filepath.Join(dataDir, "mirror")
	System.Folder.Cache = filepath.Join(dataDir, "cache")
	System.Folder.Exports = filepath.Join(dataDir, "cache", "exports")
	System.Folder.Schedules = filepath.Join(dataDir, "cache", "schedules")
	System.Folder.Source = filepath.Join(dataDir, "source-cache")
	System.Folder.Backup = filepath.Join(dataDir, "backup")
	System.Folder.Temp = filepath.Join(dataDir, "temp")
	System.File.Settings = filepath.Join(dataDir, "settings.json")

	if virtual {
		System.VFS = memVFS()
	} else {
		System.VFS = osfs.New()
	}

	for _, folder := range []string{
		System.Folder.Data,
		System.Folder.Mirror,
		System.Folder.Cache,
		System.Folder.Exports,
		System.Folder.Schedules,
		System.Folder.Source,
		System.Folder.Backup,
		System.Folder.Temp,
	} {
		if err := System.VFS.MkdirAll(folder, 0o755); err != nil {
			return fmt.Errorf("core: create folder %s: %w", folder, err)
		}
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".epgviewer")
	}
	return filepath.Join(os.TempDir(), "epgviewer")
}

// showDevInfo prints the startup banner when debug logging is enabled.
func showDevInfo() {
	if System.Debug == 0 {
		return
	}
	fmt.Println("* * * * * * * * * * * * * * * * * * *")
	fmt.Println("epg-viewer", System.Version, "build", System.Build)
	fmt.Println("* * * * * * * * * * * * * * * * * * *")
}
