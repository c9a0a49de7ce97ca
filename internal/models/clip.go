package models

import (
	"time"

	"github.com/google/uuid"
)

// Clip statuses.
const (
	ClipStatusPending   = "pending"
	ClipStatusCompleted = "completed"
	ClipStatusFailed    = "failed"
)

// Clip is a DVR excerpt exported from a stream's frame buffer.
type Clip struct {
	ID         uuid.UUID  `json:"id"`
	StreamID   string     `json:"stream_id"`
	FrameCount int        `json:"frame_count"`
	FirstSeq   uint64     `json:"first_seq"`
	LastSeq    uint64     `json:"last_seq"`
	Status     string     `json:"status"`
	S3Key      string     `json:"s3_key,omitempty"`
	S3URL      string     `json:"s3_url,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

// StreamSessionRecord is the audit row written when a session starts and
// finalized when it ends. Control-plane reads come from in-memory state,
// never from these rows.
type StreamSessionRecord struct {
	ID            uuid.UUID  `json:"id"`
	StreamID      string     `json:"stream_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	EndReason     string     `json:"end_reason,omitempty"`
	FrameCount    uint64     `json:"frame_count"`
	DroppedFrames uint64     `json:"dropped_frames"`
	FinalStatus   string     `json:"final_status,omitempty"`
}
