package core

import (
	"errors"
	"io/fs"

	"github.com/avfs/avfs"
	"github.com/avfs/avfs/vfs/memfs"
)

// memVFS builds the in-memory filesystem used for virtual Bootstrap runs.
func memVFS() avfs.VFS {
	return memfs.New()
}

// isNotExist reports whether err is any of the "file does not exist"
// sentinels an avfs.VFS backend may return.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, avfs.ErrNoSuchFileOrDir) ||
		errors.Is(err, avfs.ErrWinFileNotFound) ||
		errors.Is(err, avfs.ErrWinPathNotFound)
}
