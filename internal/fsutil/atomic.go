// Package fsutil provides the persistence primitives shared by every
// durable component: atomic JSON snapshot (write-temp + rename), an
// append-only line log, and a reclaimable file lock. Modeled on the
// write(path.tmp)->rename(path.tmp, path) idiom the teacher's
// checkpoint.Store already uses for per-step checkpoint files.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteJSONAtomic marshals v as indented JSON and atomically replaces path.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the same directory as path
// and renames it into place, so a crash never leaves a half-written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp into %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a JSON file into v. A missing file is not an error; v is
// left unmodified and ok is false.
func ReadJSON(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return true, nil
}

// AppendLine appends a single line (a newline is added) to path, creating
// it (and any header) if it doesn't exist.
func AppendLine(path string, header string, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	needsHeader := false
	if header != "" {
		if info, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			needsHeader = true
		} else if info.Size() == 0 {
			needsHeader = true
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if needsHeader {
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("write header %s: %w", path, err)
		}
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return f.Sync()
}

// Lock is a reclaimable file lock: its mere presence marks the resource as
// held; a lock older than staleAfter is considered abandoned and may be
// reclaimed by a new Acquire call.
type Lock struct {
	path string
}

// NewLock returns a lock handle for the given lock file path.
func NewLock(path string) *Lock { return &Lock{path: path} }

// Acquire creates the lock file, failing if a live (non-stale) lock is
// already held. Returns (false, nil) when the lock is held by another
// process and is not yet stale.
func (l *Lock) Acquire(staleAfter time.Duration) (bool, error) {
	if info, err := os.Stat(l.path); err == nil {
		if time.Since(info.ModTime()) < staleAfter {
			return false, nil
		}
		// Stale: reclaim by removing before recreating.
		_ = os.Remove(l.path)
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat lock %s: %w", l.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("mkdir %s: %w", filepath.Dir(l.path), err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create lock %s: %w", l.path, err)
	}
	defer f.Close()
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return true, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
