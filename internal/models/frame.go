package models

import (
	"time"
)

// VideoFrame is one decoded frame handed to the core by the ingestion
// transport. Payload is the raw pixel buffer; the core never re-encodes it.
type VideoFrame struct {
	StreamID   string    `json:"stream_id"`
	Sequence   uint64    `json:"sequence"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Payload    []byte    `json:"payload,omitempty"`
}

// FrameEnvelope is the JSON wire form accepted on the WebSocket ingest edge.
// Payload is base64 by virtue of []byte JSON encoding.
type FrameEnvelope struct {
	Sequence   uint64 `json:"sequence"`
	CapturedAt int64  `json:"captured_at_ms"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Payload    []byte `json:"payload,omitempty"`
}

// Frame converts the wire envelope into a VideoFrame for a stream.
func (e FrameEnvelope) Frame(streamID string) *VideoFrame {
	return &VideoFrame{
		StreamID:   streamID,
		Sequence:   e.Sequence,
		CapturedAt: time.UnixMilli(e.CapturedAt),
		Width:      e.Width,
		Height:     e.Height,
		Payload:    e.Payload,
	}
}
