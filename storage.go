package filedb

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// FS is the host filesystem collaborator spec.md §1 and §4.A treat as an
// external dependency: directory create, file read/write/append/rename/
// fsync/exists. Modeled on calvinalkan-agent-task's internal/fs package so
// that a test double can inject I/O failures the same way.
type FS interface {
	Exists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
	Rename(oldpath, newpath string) error
	Remove(path string) error
	MkdirAll(path string) error
	// Fsync commits path's contents (file) or directory entry changes
	// (directory) to stable storage. Some platforms cannot fsync a
	// directory; implementations should treat that as a no-op, not an
	// error (spec.md §4.A).
	Fsync(path string) error
}

// realFS is the production FS, wrapping os plus natefinch/atomic for the
// temp-write-then-rename step (the same dependency
// calvinalkan-agent-task's internal/fs/real.go uses for crash-safe writes).
type realFS struct{}

func newRealFS() FS { return realFS{} }

func (realFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ioErr(err)
}

func (realFS) ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ioErr(err)
	}
	return b, nil
}

func (realFS) WriteFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, strings.NewReader(string(data))); err != nil {
		return ioErr(err)
	}
	return nil
}

func (realFS) AppendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return ioErr(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return ioErr(err)
	}
	return nil
}

func (realFS) Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return ioErr(err)
	}
	return nil
}

func (realFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ioErr(err)
	}
	return nil
}

func (realFS) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return ioErr(err)
	}
	return nil
}

func (realFS) Fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ioErr(err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		// Directories cannot be fsync'd on every platform; treat EINVAL
		// and friends as "best effort done" rather than a hard failure.
		if info, statErr := f.Stat(); statErr == nil && info.IsDir() {
			return nil
		}
		return ioErr(err)
	}
	return nil
}

func tildePath(path string) string { return path + reservedTildeSuffix }

// validateFilename rejects a filename ending in "~": the suffix is reserved
// for crash-safe temporaries (spec.md §4.A).
func validateFilename(path string) error {
	if strings.HasSuffix(path, reservedTildeSuffix) {
		return newErr(ReservedFilename, "filename may not end in '~': the suffix is reserved for crash-safe temporaries")
	}
	return nil
}

// crashSafeWrite implements the full-write procedure of spec.md §4.A:
// fsync the parent directory, fsync the existing file (if any), write the
// temp sibling, fsync it, rename it into place, fsync the parent directory
// again.
func crashSafeWrite(fs FS, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.Fsync(dir); err != nil {
		return err
	}
	if exists, err := fs.Exists(path); err != nil {
		return err
	} else if exists {
		if err := fs.Fsync(path); err != nil {
			return err
		}
	}

	tmp := tildePath(path)
	if err := fs.WriteFile(tmp, data); err != nil {
		return err
	}
	if err := fs.Fsync(tmp); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		return err
	}
	return fs.Fsync(dir)
}

// ensureDatafileIntegrity implements the startup check of spec.md §4.A: if
// F exists, nothing to do; else if the crash-safe temp sibling F~ exists,
// promote it (recovering from a crash between write and rename); else
// create an empty F.
func ensureDatafileIntegrity(fs FS, path string) error {
	exists, err := fs.Exists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	tmp := tildePath(path)
	tmpExists, err := fs.Exists(tmp)
	if err != nil {
		return err
	}
	if tmpExists {
		return fs.Rename(tmp, path)
	}
	return fs.WriteFile(path, nil)
}
