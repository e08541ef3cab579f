package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/metrics"
)

// Workspace is the set of files one request owns on disk.
type Workspace interface {
	Source() string
	Target() string
	Alias(ext string) (string, error)
	Cleanup() error
}

// GenerateFunc produces the artifact described by the returned spec.
type GenerateFunc func(ctx context.Context) (entity.GenerationSpec, error)

// LifecycleManager runs a generation and guarantees that every file of the
// request workspace is gone when it returns, whatever the outcome.
type LifecycleManager struct {
	checker repository.ThreatChecker
	logger  *slog.Logger
}

func NewLifecycleManager(checker repository.ThreatChecker, logger *slog.Logger) *LifecycleManager {
	return &LifecycleManager{checker: checker, logger: logger}
}

// Run invokes generate, optionally self-checks the output and returns the
// artifact loaded in memory.
func (m *LifecycleManager) Run(ctx context.Context, ws Workspace, generate GenerateFunc) (*entity.Artifact, error) {
	defer m.release(ws)

	spec, err := generate(ctx)
	if err != nil {
		return nil, err
	}

	var report *entity.DetectionReport
	if spec.Check {
		r, err := m.validate(ctx, spec.OutFile)
		if err != nil {
			return nil, err
		}
		report = &r
	}

	data, err := os.ReadFile(spec.OutFile)
	if err != nil {
		return nil, &entity.StorageError{Op: "read generated artifact", Err: err}
	}
	if len(data) == 0 {
		return nil, &entity.GenerationError{Kind: spec.Kind, Reason: "toolchain produced an empty artifact"}
	}

	return &entity.Artifact{Data: data, Report: report}, nil
}

// Check scans the uploaded source itself.
func (m *LifecycleManager) Check(ctx context.Context, ws Workspace) (entity.DetectionReport, error) {
	defer m.release(ws)
	return m.validate(ctx, ws.Source())
}

func (m *LifecycleManager) validate(ctx context.Context, path string) (entity.DetectionReport, error) {
	report, err := m.checker.Validate(ctx, path)
	if err != nil {
		var be *entity.BackendError
		if !errors.As(err, &be) {
			err = &entity.BackendError{Err: err}
		}
		return entity.DetectionReport{}, err
	}
	return report, nil
}

func (m *LifecycleManager) release(ws Workspace) {
	if err := ws.Cleanup(); err != nil {
		metrics.IncCleanupFailure()
		m.logger.Error("workspace cleanup failed", "err", err)
	}
}
