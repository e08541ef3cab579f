package entity

import "time"

// Signature is a single detection hit inside a scanned file.
type Signature struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset,omitempty"`
}

// DetectionReport is the result of a self-check. Detected=true is a valid
// result, not a failure.
type DetectionReport struct {
	Engine     string      `json:"engine"`
	Detected   bool        `json:"detected"`
	Signatures []Signature `json:"signatures,omitempty"`
	ScannedAt  time.Time   `json:"scanned_at"`
}

// Artifact is a generated file loaded in memory. The on-disk copy is gone
// by the time an Artifact is returned.
type Artifact struct {
	Data   []byte
	Report *DetectionReport
}
