package domain

import (
	"encoding/json"
	"time"
)

// SourceRecord is one message acquired from a channel. It is immutable once captured.
type SourceRecord struct {
	NaturalKey int64           `json:"message_id"`
	Channel    string          `json:"channel_username"`
	Payload    json.RawMessage `json:"raw_json"`
	CapturedAt time.Time       `json:"message_timestamp"`
}

// Attachment is a side artifact owned by a SourceRecord. Location is relative to the lake root.
type Attachment struct {
	OwnerKey   int64     `json:"message_id"`
	Channel    string    `json:"channel_username"`
	Location   string    `json:"image_path"`
	CapturedAt time.Time `json:"image_date"`
}

// Annotation is one derived label for an attachment.
// (SubjectKey, SubjectLocation, Label) is unique.
type Annotation struct {
	SubjectKey      int64     `json:"message_id"`
	SubjectLocation string    `json:"image_path"`
	Label           string    `json:"detected_object_class"`
	Score           float64   `json:"confidence_score"`
	ProducedAt      time.Time `json:"detected_at"`
}

// WorkUnit is a subject that has an attachment but no annotation yet.
type WorkUnit struct {
	SubjectKey      int64  `json:"message_id"`
	SubjectLocation string `json:"image_path"`
}

// ArtifactMiss records that a work unit's file could not be found when enrichment ran.
type ArtifactMiss struct {
	WorkUnit
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Label is one (label, score) pair produced by a labeling model.
type Label struct {
	Name  string  `json:"label"`
	Score float64 `json:"score"`
}

type StoreStats struct {
	SourceRecords int64 `json:"source_records"`
	Attachments   int64 `json:"attachments"`
	Annotations   int64 `json:"annotations"`
	ArtifactMiss  int64 `json:"artifact_misses"`
}
