package usecase

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/metrics"
)

const (
	recordTimeout       = 5 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type EvadorUsecase interface {
	ListModules(ctx context.Context) []string
	Check(ctx context.Context, ws Workspace) (entity.DetectionReport, error)
	GenerateNative(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error)
	GenerateDotNet(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error)
	GeneratePowerShell(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error)
	History(ctx context.Context, limit int) ([]*entity.GenerationRecord, error)
}

var _ EvadorUsecase = (*EvadorService)(nil)

type EvadorService struct {
	dispatcher *Dispatcher
	lifecycle  *LifecycleManager
	catalog    repository.ModuleCatalog
	records    repository.RecordRepository
	events     repository.EventPublisher
	logger     *slog.Logger
}

// NewEvadorService wires the service. records and events may be nil.
func NewEvadorService(
	dispatcher *Dispatcher,
	lifecycle *LifecycleManager,
	catalog repository.ModuleCatalog,
	records repository.RecordRepository,
	events repository.EventPublisher,
	logger *slog.Logger,
) *EvadorService {
	return &EvadorService{
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		catalog:    catalog,
		records:    records,
		events:     events,
		logger:     logger,
	}
}

func (s *EvadorService) ListModules(ctx context.Context) []string {
	return s.catalog.List()
}

func (s *EvadorService) Check(ctx context.Context, ws Workspace) (entity.DetectionReport, error) {
	report, err := s.lifecycle.Check(ctx, ws)
	if err != nil {
		s.logger.Warn("threat check failed", "err", err)
		return entity.DetectionReport{}, err
	}
	return report, nil
}

func (s *EvadorService) GenerateNative(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error) {
	return s.run(ctx, entity.OutputNative, ws, func(ctx context.Context) (entity.GenerationSpec, error) {
		return s.dispatcher.GenerateNative(ctx, ws, params)
	})
}

func (s *EvadorService) GenerateDotNet(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error) {
	return s.run(ctx, entity.OutputDotNet, ws, func(ctx context.Context) (entity.GenerationSpec, error) {
		return s.dispatcher.GenerateDotNet(ctx, ws, params)
	})
}

func (s *EvadorService) GeneratePowerShell(ctx context.Context, ws Workspace, params url.Values) (*entity.Artifact, error) {
	return s.run(ctx, entity.OutputPowerShell, ws, func(ctx context.Context) (entity.GenerationSpec, error) {
		return s.dispatcher.GeneratePowerShell(ctx, ws, params)
	})
}

func (s *EvadorService) History(ctx context.Context, limit int) ([]*entity.GenerationRecord, error) {
	if s.records == nil {
		return []*entity.GenerationRecord{}, nil
	}
	return s.records.ListRecent(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

func (s *EvadorService) run(ctx context.Context, kind entity.OutputKind, ws Workspace, dispatch GenerateFunc) (*entity.Artifact, error) {
	metrics.GenerationStarted()
	defer metrics.GenerationFinished()

	rec := entity.NewGenerationRecord(kind)
	logger := s.logger.With("record_id", rec.ID, "kind", kind.String())

	artifact, err := s.lifecycle.Run(ctx, ws, func(ctx context.Context) (entity.GenerationSpec, error) {
		spec, err := dispatch(ctx)
		rec.Describe(spec)
		return spec, err
	})
	rec.Finish(artifact, err)

	result := "success"
	if err != nil {
		result = entity.ErrorClass(err)
		logger.Warn("generation failed", "class", result, "err", err)
	} else {
		logger.Info("artifact generated", "size", rec.Size, "duration", rec.Duration, "detected", rec.Detected)
	}
	metrics.IncGeneration(kind.String(), result)
	metrics.ObserveGenerationDuration(kind.String(), rec.Duration)

	s.record(ctx, rec, logger)
	return artifact, err
}

// record persists and publishes rec. Failures here never fail the request.
func (s *EvadorService) record(ctx context.Context, rec *entity.GenerationRecord, logger *slog.Logger) {
	if s.records != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.records.Save(saveCtx, rec); err != nil {
			metrics.IncError("evador_service", "save_record")
			logger.Error("save generation record failed", "err", err)
		}
	}
	if s.events != nil {
		s.events.Publish(rec)
	}
}
