package stages

import (
	"context"
	"math"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
)

const (
	// passSpeedDeltaMS is the sudden ball acceleration (m/s) that reads as
	// a kick.
	passSpeedDeltaMS = 6.0
	// shotSpeedMS is the ball speed above which a kick reads as a shot.
	shotSpeedMS = 18.0
	// possessionRadiusM is how close a player must be to the ball to be
	// credited with the kick.
	possessionRadiusM = 2.5
	eventHistoryDepth = 5
)

// EventDetect flags pass and shot events from ball motion over a short
// window. Per frame it only compares the current ball speed against the
// previous one; the window of recent speeds it consumes is its own small
// per-session buffer.
type EventDetect struct {
	recentSpeeds []float64
}

func NewEventDetect() *EventDetect { return &EventDetect{} }

func (s *EventDetect) Name() string      { return "events" }
func (s *EventDetect) HistoryDepth() int { return eventHistoryDepth }

func (s *EventDetect) Process(_ context.Context, _ *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	if !ac.Ball.Known {
		s.pushSpeed(0)
		return pipeline.Skip("ball position unknown")
	}

	speed := math.Hypot(ac.Ball.Velocity.X, ac.Ball.Velocity.Y)
	prev := s.lastSpeed()
	s.pushSpeed(speed)

	if speed-prev < passSpeedDeltaMS {
		return nil
	}

	ev := models.MatchEvent{
		Type:       models.EventPass,
		Confidence: ac.Ball.Confidence * 0.8,
		TrackID:    nearestTrackID(ac.Players, ac.Ball.Position),
		Ball:       ac.Ball.Position,
	}
	if speed >= shotSpeedMS {
		ev.Type = models.EventShot
	}
	ac.Events = append(ac.Events, ev)
	return nil
}

func (s *EventDetect) pushSpeed(v float64) {
	s.recentSpeeds = append(s.recentSpeeds, v)
	if len(s.recentSpeeds) > eventHistoryDepth {
		s.recentSpeeds = s.recentSpeeds[1:]
	}
}

func (s *EventDetect) lastSpeed() float64 {
	if len(s.recentSpeeds) == 0 {
		return 0
	}
	return s.recentSpeeds[len(s.recentSpeeds)-1]
}

// nearestTrackID returns the track closest to p within the possession
// radius, or -1.
func nearestTrackID(players []models.PlayerTrack, p models.Point) int {
	best := -1
	bestDist := possessionRadiusM
	for _, pl := range players {
		d := math.Hypot(pl.Position.X-p.X, pl.Position.Y-p.Y)
		if d < bestDist {
			bestDist = d
			best = pl.TrackID
		}
	}
	return best
}
