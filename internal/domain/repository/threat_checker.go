package repository

import (
	"context"
	"evador/internal/domain/entity"
)

// ThreatChecker scans a file with the detection backend.
type ThreatChecker interface {
	Validate(ctx context.Context, path string) (entity.DetectionReport, error)
}
