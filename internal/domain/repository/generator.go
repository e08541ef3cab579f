package repository

import (
	"context"
	"evador/internal/domain/entity"
)

// ArtifactGenerator produces an artifact at spec.OutFile from sourcePath.
type ArtifactGenerator interface {
	Generate(ctx context.Context, sourcePath string, spec entity.GenerationSpec) error
}

// GeneratorFactory returns a new generator for every call. Generators are
// never shared between requests.
type GeneratorFactory interface {
	NewGenerator(kind entity.OutputKind) (ArtifactGenerator, error)
}

// FormatDetector classifies an uploaded source.
type FormatDetector interface {
	Detect(path string) (entity.SourceInfo, error)
}

// ModuleCatalog lists the capability identifiers the toolchain supports.
type ModuleCatalog interface {
	List() []string
}
