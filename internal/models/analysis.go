package models

import (
	"time"
)

// Point is a pitch-plane coordinate in meters from the top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a velocity in meters per second.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Team side assignment for a tracked player.
type Team string

const (
	TeamUnknown Team = "unknown"
	TeamHome    Team = "home"
	TeamAway    Team = "away"
)

// PlayerTrack is one tracked player in a frame.
type PlayerTrack struct {
	TrackID    int     `json:"track_id"`
	Position   Point   `json:"position"`
	Velocity   Vector  `json:"velocity"`
	Confidence float64 `json:"confidence"`
	Team       Team    `json:"team"`
	// JerseyHue is the dominant jersey hue in degrees, used for team clustering.
	JerseyHue float64 `json:"jersey_hue,omitempty"`
}

// BallState is the ball position for a frame. Predicted is true when the
// ball was not detected and the position was extrapolated from the last
// known velocity; Known is false once the occlusion window is exhausted.
type BallState struct {
	Known      bool    `json:"known"`
	Predicted  bool    `json:"predicted"`
	Position   Point   `json:"position"`
	Velocity   Vector  `json:"velocity"`
	Confidence float64 `json:"confidence"`
}

// EventType classifies a detected match event.
type EventType string

const (
	EventPass EventType = "pass"
	EventShot EventType = "shot"
)

// MatchEvent is one detected event with its confidence.
type MatchEvent struct {
	Type       EventType `json:"type"`
	Confidence float64   `json:"confidence"`
	// TrackID of the player the event is attributed to, -1 when unknown.
	TrackID int   `json:"track_id"`
	Ball    Point `json:"ball"`
}

// Formation is a shape classification of one team's current positions,
// e.g. "4-4-2". Empty when too few players are tracked to classify.
type Formation struct {
	Home string `json:"home,omitempty"`
	Away string `json:"away,omitempty"`
}

// FrameMetrics are aggregates computed from the accumulated context.
type FrameMetrics struct {
	PossessionTeam Team    `json:"possession_team"`
	HomeSpreadM    float64 `json:"home_spread_m"`
	AwaySpreadM    float64 `json:"away_spread_m"`
	TrackedPlayers int     `json:"tracked_players"`
}

// StageOutcome records how one pipeline stage fared for a frame.
type StageOutcome string

const (
	StageSuccess StageOutcome = "success"
	StageSkipped StageOutcome = "skipped"
	StageFailed  StageOutcome = "failed"
)

// StageStatus is the per-stage entry in the context status map.
type StageStatus struct {
	Outcome StageOutcome `json:"outcome"`
	Detail  string       `json:"detail,omitempty"`
}

// AnalysisContext accumulates stage outputs for one frame. Stages mutate it
// in order; a failed stage leaves it as the previous stage produced it.
type AnalysisContext struct {
	StreamID   string    `json:"stream_id"`
	Sequence   uint64    `json:"sequence"`
	CapturedAt time.Time `json:"captured_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`

	Players   []PlayerTrack `json:"players,omitempty"`
	Ball      BallState     `json:"ball"`
	Events    []MatchEvent  `json:"events,omitempty"`
	Formation Formation     `json:"formation"`
	Metrics   FrameMetrics  `json:"metrics"`

	// Stages maps stage name to its outcome for this frame.
	Stages map[string]StageStatus `json:"stages"`
	// Degraded is true when every stage failed and only frame metadata
	// survived.
	Degraded bool `json:"degraded"`
}

// NewAnalysisContext seeds a context with frame metadata.
func NewAnalysisContext(f *VideoFrame) *AnalysisContext {
	return &AnalysisContext{
		StreamID:   f.StreamID,
		Sequence:   f.Sequence,
		CapturedAt: f.CapturedAt,
		Width:      f.Width,
		Height:     f.Height,
		Ball:       BallState{},
		Stages:     make(map[string]StageStatus),
	}
}

// Clone returns a deep copy so a failing stage cannot corrupt the last good
// context mid-mutation.
func (ac *AnalysisContext) Clone() *AnalysisContext {
	cp := *ac
	cp.Players = append([]PlayerTrack(nil), ac.Players...)
	cp.Events = append([]MatchEvent(nil), ac.Events...)
	cp.Stages = make(map[string]StageStatus, len(ac.Stages))
	for k, v := range ac.Stages {
		cp.Stages[k] = v
	}
	return &cp
}
