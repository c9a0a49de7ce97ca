package stages

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/models"
)

// maxMatchDistanceM is how far a player can plausibly move between frames
// and still be matched to an existing track.
const maxMatchDistanceM = 3.0

// PlayerDetect runs player detection through the bounded inference client
// and assigns stable track IDs by nearest-neighbor matching against the
// previous frame's tracks. Detection itself is per frame; the previous
// tracks are the stage's own per-session state.
type PlayerDetect struct {
	inf        ml.Inferencer
	prevTracks []models.PlayerTrack
	prevAt     time.Time
	nextID     int
}

func NewPlayerDetect(inf ml.Inferencer) *PlayerDetect {
	return &PlayerDetect{inf: inf, nextID: 1}
}

func (s *PlayerDetect) Name() string      { return "detect" }
func (s *PlayerDetect) HistoryDepth() int { return 1 }

func (s *PlayerDetect) Process(ctx context.Context, frame *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	detections, err := s.inf.DetectPlayers(ctx, frame)
	if err != nil {
		return fmt.Errorf("detect players: %w", err)
	}

	dt := frame.CapturedAt.Sub(s.prevAt).Seconds()
	if s.prevAt.IsZero() || dt <= 0 {
		dt = 1.0 / 30.0
	}

	tracks := make([]models.PlayerTrack, 0, len(detections))
	claimed := make(map[int]bool, len(s.prevTracks))
	for _, det := range detections {
		track := models.PlayerTrack{
			Position:   det.Position,
			Confidence: det.Confidence,
			JerseyHue:  det.JerseyHue,
			Team:       models.TeamUnknown,
		}
		if prev, ok := s.match(det.Position, claimed); ok {
			claimed[prev.TrackID] = true
			track.TrackID = prev.TrackID
			track.Velocity = models.Vector{
				X: (det.Position.X - prev.Position.X) / dt,
				Y: (det.Position.Y - prev.Position.Y) / dt,
			}
		} else {
			track.TrackID = s.nextID
			s.nextID++
		}
		tracks = append(tracks, track)
	}

	s.prevTracks = tracks
	s.prevAt = frame.CapturedAt
	ac.Players = tracks
	return nil
}

// match finds the closest unclaimed previous track within the movement gate.
func (s *PlayerDetect) match(p models.Point, claimed map[int]bool) (models.PlayerTrack, bool) {
	best := -1
	bestDist := maxMatchDistanceM
	for i, prev := range s.prevTracks {
		if claimed[prev.TrackID] {
			continue
		}
		d := math.Hypot(p.X-prev.Position.X, p.Y-prev.Position.Y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return models.PlayerTrack{}, false
	}
	return s.prevTracks[best], true
}
