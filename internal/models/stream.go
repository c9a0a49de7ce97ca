package models

import (
	"time"
)

// SessionStatus is the stream session lifecycle state.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusActive   SessionStatus = "active"
	StatusDegraded SessionStatus = "degraded"
	StatusStopping SessionStatus = "stopping"
	StatusStopped  SessionStatus = "stopped"
	StatusFailed   SessionStatus = "failed"
)

// Live reports whether the status counts against the concurrency ceiling.
func (s SessionStatus) Live() bool {
	return s == StatusStarting || s == StatusActive || s == StatusDegraded
}

// StreamConfig is the per-stream configuration accepted on stream start.
// Zero values fall back to the process-wide defaults.
type StreamConfig struct {
	StreamID   string `json:"stream_id,omitempty"`
	BufferSize int    `json:"buffer_size,omitempty"`
	FPSHint    int    `json:"fps_hint,omitempty"`
}

// SessionMetrics is the control-plane snapshot of one stream session.
type SessionMetrics struct {
	StreamID      string        `json:"stream_id"`
	Status        SessionStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	LastFrameAt   time.Time     `json:"last_frame_at,omitempty"`
	FrameCount    uint64        `json:"frame_count"`
	DroppedFrames uint64        `json:"dropped_frames"`
	EvictedFrames uint64        `json:"evicted_frames"`
	BufferLen     int           `json:"buffer_len"`
	// LastSummary is a compact view of the most recent analysis result.
	LastSummary *AnalysisSummary `json:"last_summary,omitempty"`
}

// AnalysisSummary is the compact frame_analyzed payload and the
// "last analysis" view in session metrics.
type AnalysisSummary struct {
	Sequence       uint64       `json:"sequence"`
	TrackedPlayers int          `json:"tracked_players"`
	Ball           BallState    `json:"ball"`
	Events         []MatchEvent `json:"events,omitempty"`
	Formation      Formation    `json:"formation"`
	Possession     Team         `json:"possession"`
	Degraded       bool         `json:"degraded"`
	FailedStages   []string     `json:"failed_stages,omitempty"`
}

// Summarize builds the compact event payload from a full context.
func Summarize(ac *AnalysisContext) *AnalysisSummary {
	s := &AnalysisSummary{
		Sequence:       ac.Sequence,
		TrackedPlayers: len(ac.Players),
		Ball:           ac.Ball,
		Events:         ac.Events,
		Formation:      ac.Formation,
		Possession:     ac.Metrics.PossessionTeam,
		Degraded:       ac.Degraded,
	}
	for name, st := range ac.Stages {
		if st.Outcome == StageFailed {
			s.FailedStages = append(s.FailedStages, name)
		}
	}
	return s
}

// SupervisorStats aggregates supervisor-level counters for GET /stats.
type SupervisorStats struct {
	ActiveStreams  int    `json:"active_streams"`
	MaxStreams     int    `json:"max_streams"`
	TotalStarted   uint64 `json:"total_started"`
	TotalStopped   uint64 `json:"total_stopped"`
	TotalRejected  uint64 `json:"total_rejected"`
	TotalFrames    uint64 `json:"total_frames"`
	TotalDropped   uint64 `json:"total_dropped"`
	TimedOutStops  uint64 `json:"timed_out_stops"`
	FailedSessions uint64 `json:"failed_sessions"`
}
