package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Local serves objects from a directory. Objects present only under the
// archive directory are cold until restored into root.
type Local struct {
	root    string
	archive string
}

// NewLocal creates a Local store. An empty archive disables the cold tier.
func NewLocal(root, archive string) *Local {
	return &Local{root: root, archive: archive}
}

// Status reports Hot for objects under root, Cold for objects only in the
// archive and Missing otherwise.
func (l *Local) Status(_ context.Context, key string) (State, error) {
	ok, err := exists(localPath(l.root, key))
	if err != nil {
		return StateMissing, err
	}
	if ok {
		return StateHot, nil
	}
	if l.archive == "" {
		return StateMissing, nil
	}
	ok, err = exists(localPath(l.archive, key))
	if err != nil {
		return StateMissing, err
	}
	if ok {
		return StateCold, nil
	}
	return StateMissing, nil
}

// RequestRestore copies an archived object back under root.
func (l *Local) RequestRestore(_ context.Context, key string) error {
	if l.archive == "" {
		return fmt.Errorf("restore %s: no archive configured", key)
	}
	if err := copyFile(localPath(l.archive, key), localPath(l.root, key)); err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	return nil
}

// Fetch copies a hot object into dir, keeping the key's relative path so
// objects with the same base name never overwrite each other.
func (l *Local) Fetch(_ context.Context, key, dir string) (string, error) {
	dst := localPath(dir, key)
	if err := copyFile(localPath(l.root, key), dst); err != nil {
		return "", fmt.Errorf("fetch %s: %w", key, err)
	}
	return dst, nil
}

func exists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
