package integrity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
)

const wipeChunk = 32 * 1024

// SecureDelete overwrites the file with zeros, syncs it and removes it.
// A missing file is not an error.
func SecureDelete(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	if info.Mode().IsRegular() {
		if err := overwrite(path, info.Size()); err != nil {
			// Still remove the name; a half-overwritten file must not stay reachable.
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				return errors.Join(err, fmt.Errorf("remove artifact: %w", rmErr))
			}
			return err
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

func overwrite(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open artifact for wipe: %w", err)
	}
	zeros := make([]byte, wipeChunk)
	for remaining := size; remaining > 0; {
		n := int64(len(zeros))
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(zeros[:n]); err != nil {
			f.Close()
			return fmt.Errorf("overwrite artifact: %w", err)
		}
		remaining -= n
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	return f.Close()
}

// Artifact is the decrypted document on local storage. It is owned by exactly
// one session and must not outlive it.
type Artifact struct {
	path  string
	once  sync.Once
	err   error
	wiped atomic.Bool
}

func NewArtifact(path string) *Artifact {
	return &Artifact{path: path}
}

func (a *Artifact) Path() string {
	if a == nil || a.wiped.Load() {
		return ""
	}
	return a.path
}

// Wipe destroys the artifact. Safe to call repeatedly and from any goroutine;
// only the first call does work and later calls return its result.
func (a *Artifact) Wipe() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.wiped.Store(true)
		a.err = SecureDelete(a.path)
	})
	return a.err
}

func (a *Artifact) Wiped() bool {
	return a != nil && a.wiped.Load()
}
