package entity

import (
	"time"

	"github.com/google/uuid"
)

type RecordStatus string

const (
	RecordStatusSucceeded RecordStatus = "succeeded"
	RecordStatusFailed    RecordStatus = "failed"
)

// GenerationRecord is the persisted trace of one request. It never holds
// paths or artifact bytes.
type GenerationRecord struct {
	ID           string        `json:"id" bson:"id"`
	Kind         OutputKind    `json:"kind" bson:"kind"`
	Transformer  Transformer   `json:"transformer,omitempty" bson:"transformer,omitempty"`
	Architecture Architecture  `json:"arch,omitempty" bson:"arch,omitempty"`
	Encoders     []string      `json:"encoders,omitempty" bson:"encoders,omitempty"`
	Status       RecordStatus  `json:"status" bson:"status"`
	ErrorClass   string        `json:"error_class,omitempty" bson:"error_class,omitempty"`
	Size         int           `json:"size" bson:"size"`
	Checked      bool          `json:"checked" bson:"checked"`
	Detected     bool          `json:"detected" bson:"detected"`
	Duration     time.Duration `json:"duration" bson:"duration"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at"`
}

func NewGenerationRecord(kind OutputKind) *GenerationRecord {
	return &GenerationRecord{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// Describe copies the non-sensitive parts of spec into the record.
func (r *GenerationRecord) Describe(spec GenerationSpec) {
	r.Transformer = spec.Transformer
	r.Architecture = spec.Architecture
	r.Encoders = spec.EncoderChain().Sequence()
	r.Checked = spec.Check
}

func (r *GenerationRecord) Finish(artifact *Artifact, err error) {
	r.Duration = time.Since(r.CreatedAt)
	if err != nil {
		r.Status = RecordStatusFailed
		r.ErrorClass = ErrorClass(err)
		return
	}
	r.Status = RecordStatusSucceeded
	if artifact != nil {
		r.Size = len(artifact.Data)
		r.Detected = artifact.Report != nil && artifact.Report.Detected
	}
}
