package mongodb

import (
	"context"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"evador/internal/domain/entity"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/metrics"
)

type MongoRecordRepo struct {
	recordsCol *mongo.Collection
}

func NewMongoRecordRepo(db *mongo.Database) repository.RecordRepository {
	col := db.Collection("generations")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}},
		{Keys: bson.D{bson.E{Key: "status", Value: 1}}},
	})

	return &MongoRecordRepo{
		recordsCol: col,
	}
}

func (r *MongoRecordRepo) Save(ctx context.Context, rec *entity.GenerationRecord) error {
	metrics.IncDBRecordOp("save")

	if _, err := r.recordsCol.InsertOne(ctx, rec); err != nil {
		metrics.IncError("mongo_record_repo", "save_error")
		return err
	}
	return nil
}

// ListRecent returns the newest records first. A non-positive limit means no limit.
func (r *MongoRecordRepo) ListRecent(ctx context.Context, limit int) ([]*entity.GenerationRecord, error) {
	metrics.IncDBRecordOp("list")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.recordsCol.Find(ctx, bson.D{}, opts)
	if err != nil {
		metrics.IncError("mongo_record_repo", "list_error")
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	records := make([]*entity.GenerationRecord, 0)
	for cur.Next(ctx) {
		var rec entity.GenerationRecord
		if err := cur.Decode(&rec); err != nil {
			metrics.IncError("mongo_record_repo", "list_decode_error")
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_record_repo", "list_cursor_error")
		return nil, err
	}
	return records, nil
}

func (r *MongoRecordRepo) CountByStatus(ctx context.Context, status entity.RecordStatus) (int, error) {
	metrics.IncDBRecordOp("count")

	count, err := r.recordsCol.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		metrics.IncError("mongo_record_repo", "count_by_status_error")
		return 0, err
	}
	return int(count), nil
}
