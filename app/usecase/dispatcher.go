package usecase

import (
	"context"
	"errors"
	"net/url"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/validator"
)

type validateFunc func(ws validator.Workspace, info entity.SourceInfo, params url.Values) (entity.GenerationSpec, error)

// Dispatcher validates a request for one output kind and runs the matching
// generation strategy. It keeps no per-request state: the strategy is built,
// used and dropped inside a single call.
type Dispatcher struct {
	validator *validator.RequestValidator
	detector  repository.FormatDetector
	factory   repository.GeneratorFactory
}

func NewDispatcher(
	v *validator.RequestValidator,
	detector repository.FormatDetector,
	factory repository.GeneratorFactory,
) *Dispatcher {
	return &Dispatcher{
		validator: v,
		detector:  detector,
		factory:   factory,
	}
}

func (d *Dispatcher) GenerateNative(ctx context.Context, ws Workspace, params url.Values) (entity.GenerationSpec, error) {
	return d.generate(ctx, ws, entity.OutputNative, params, d.validator.ValidateNative)
}

func (d *Dispatcher) GenerateDotNet(ctx context.Context, ws Workspace, params url.Values) (entity.GenerationSpec, error) {
	return d.generate(ctx, ws, entity.OutputDotNet, params, d.validator.ValidateDotNet)
}

func (d *Dispatcher) GeneratePowerShell(ctx context.Context, ws Workspace, params url.Values) (entity.GenerationSpec, error) {
	return d.generate(ctx, ws, entity.OutputPowerShell, params, d.validator.ValidatePowerShell)
}

// generate returns the spec it built even when generation fails, so callers
// can describe the attempt.
func (d *Dispatcher) generate(
	ctx context.Context,
	ws Workspace,
	kind entity.OutputKind,
	params url.Values,
	validate validateFunc,
) (entity.GenerationSpec, error) {
	info, err := d.detector.Detect(ws.Source())
	if err != nil {
		return entity.GenerationSpec{Kind: kind}, &entity.StorageError{Op: "read source file", Err: err}
	}

	spec, err := validate(ws, info, params)
	if err != nil {
		return entity.GenerationSpec{Kind: kind}, err
	}

	gen, err := d.factory.NewGenerator(kind)
	if err != nil {
		return spec, &entity.GenerationError{Kind: kind, Reason: "no generator for output kind", Err: err}
	}

	if err := gen.Generate(ctx, ws.Source(), spec); err != nil {
		var ge *entity.GenerationError
		if errors.As(err, &ge) {
			return spec, err
		}
		return spec, &entity.GenerationError{Kind: kind, Reason: "generator failed", Err: err}
	}
	return spec, nil
}
