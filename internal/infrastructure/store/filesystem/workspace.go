package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Workspace owns every file created on disk for a single request.
// Cleanup removes all of them and is safe to call more than once.
type Workspace struct {
	source  string
	target  string
	tracked []string
	alloc   *PathAllocator
}

func (w *Workspace) Source() string { return w.source }

func (w *Workspace) Target() string { return w.target }

// Files lists every path currently owned by the workspace.
func (w *Workspace) Files() []string {
	out := make([]string, len(w.tracked))
	copy(out, w.tracked)
	return out
}

func (w *Workspace) track(path string) {
	w.tracked = append(w.tracked, path)
}

// Alias copies the source next to itself with extension ext and tracks the
// copy. If that name is taken a random token is inserted after the prefix.
func (w *Workspace) Alias(ext string) (string, error) {
	dir := filepath.Dir(w.source)
	base := filepath.Base(w.source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := stem + "." + ext

	path := filepath.Join(dir, name)
	ok, err := reserve(path)
	if err != nil {
		return "", err
	}
	if !ok {
		rest := strings.TrimPrefix(name, SourcePrefix)
		path, err = w.alloc.allocate(func(token string) string {
			return filepath.Join(dir, SourcePrefix+token+"_"+rest)
		})
		if err != nil {
			return "", err
		}
	}
	w.track(path)

	if err := copyFile(w.source, path); err != nil {
		return "", fmt.Errorf("copy source alias: %w", err)
	}
	return path, nil
}

func (w *Workspace) Cleanup() error {
	var errs []error
	for _, path := range w.tracked {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", filepath.Base(path), err))
		}
	}
	w.tracked = nil
	return errors.Join(errs...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
