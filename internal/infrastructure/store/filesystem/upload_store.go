package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evador/internal/domain/entity"
	"evador/internal/infrastructure/metrics"
)

// UploadStore keeps request files in a single flat directory.
type UploadStore struct {
	basePath string
	alloc    *PathAllocator
}

func NewUploadStore(basePath string) (*UploadStore, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o700); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &UploadStore{
		basePath: basePath,
		alloc:    NewPathAllocator(),
	}, nil
}

func (s *UploadStore) BasePath() string {
	return s.basePath
}

// Open persists an uploaded source and reserves the output path. On error
// nothing is left on disk.
func (s *UploadStore) Open(ctx context.Context, filename string, src io.Reader) (*Workspace, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return nil, entity.NewValidationError("binary", entity.ErrInvalidSourceName)
	}

	ws := &Workspace{alloc: s.alloc}

	source, err := s.reserveSource(name)
	if err != nil {
		return nil, &entity.StorageError{Op: "save source file", Err: err}
	}
	ws.source = source
	ws.track(source)

	n, err := writeSource(ctx, source, src)
	if err != nil {
		_ = ws.Cleanup()
		metrics.IncError("upload_store", "write_source")
		return nil, &entity.StorageError{Op: "save source file", Err: err}
	}
	metrics.ObserveUploadSize(n)

	target, err := s.alloc.Allocate(s.basePath, TargetPrefix)
	if err != nil {
		_ = ws.Cleanup()
		metrics.IncError("upload_store", "allocate_target")
		return nil, &entity.StorageError{Op: "generate target file name", Err: err}
	}
	ws.target = target
	ws.track(target)

	return ws, nil
}

func (s *UploadStore) reserveSource(name string) (string, error) {
	path := filepath.Join(s.basePath, SourcePrefix+name)
	ok, err := reserve(path)
	if err != nil {
		return "", err
	}
	if ok {
		return path, nil
	}
	return s.alloc.allocate(func(token string) string {
		return filepath.Join(s.basePath, SourcePrefix+token+"_"+name)
	})
}

func writeSource(ctx context.Context, path string, src io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, readerWithContext(ctx, src))
	if err != nil {
		_ = f.Close()
		return n, err
	}
	return n, f.Close()
}

// Sweep removes request files older than maxAge. It exists for files left
// behind by a crash; normal requests clean up after themselves.
func (s *UploadStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, SourcePrefix) || strings.HasPrefix(name, TargetPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		removed++
	}
	metrics.AddOrphansSwept(removed)
	return removed, errors.Join(errs...)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
