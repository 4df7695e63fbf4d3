// Package storage resolves catalog file locators to bytes and reports
// whether they sit in an archival tier that needs restoring first.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// State is an object's availability.
type State int

const (
	StateMissing State = iota
	StateHot
	StateCold
	StateRestoring
)

func (s State) String() string {
	switch s {
	case StateHot:
		return "hot"
	case StateCold:
		return "cold"
	case StateRestoring:
		return "restoring"
	default:
		return "missing"
	}
}

// ObjectStore is the storage backend the build orchestrator talks to.
type ObjectStore interface {
	Status(ctx context.Context, key string) (State, error)
	RequestRestore(ctx context.Context, key string) error
	// Fetch copies the object into dir and returns the local path.
	Fetch(ctx context.Context, key, dir string) (string, error)
}

// localPath joins key under base without letting it escape base.
func localPath(base, key string) string {
	return filepath.Join(base, filepath.FromSlash(path.Clean("/"+key)))
}

// copyFile writes src to dst through a temporary file so readers never see
// a partial object.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
