package repository

import (
	"context"
	"evador/internal/domain/entity"
)

// RecordRepository stores the generation history.
type RecordRepository interface {
	Save(ctx context.Context, rec *entity.GenerationRecord) error
	ListRecent(ctx context.Context, limit int) ([]*entity.GenerationRecord, error)
	CountByStatus(ctx context.Context, status entity.RecordStatus) (int, error)
}

// EventPublisher fans finished records out to live subscribers.
type EventPublisher interface {
	Publish(rec *entity.GenerationRecord)
}
