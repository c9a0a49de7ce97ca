package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/models"
)

const (
	// detectionConfidenceFloor is the confidence below which a ball
	// detection is treated as occluded.
	detectionConfidenceFloor = 0.3
	// occlusionDecay shrinks predicted-position confidence each occluded
	// frame.
	occlusionDecay = 0.8
	// DefaultMaxOcclusionFrames is how long the tracker predicts through
	// occlusion before declaring the ball position unknown.
	DefaultMaxOcclusionFrames = 15
)

// BallTrack tracks the ball through brief occlusion. While detection
// confidence stays below the floor it extrapolates from the last known
// velocity with decaying confidence; past maxOcclusion consecutive occluded
// frames it reports the position as unknown rather than guessing forever.
type BallTrack struct {
	inf          ml.Inferencer
	maxOcclusion int

	last       models.BallState
	lastAt     time.Time
	occluded   int
	everSeen   bool
	confidence float64
}

func NewBallTrack(inf ml.Inferencer, maxOcclusionFrames int) *BallTrack {
	if maxOcclusionFrames <= 0 {
		maxOcclusionFrames = DefaultMaxOcclusionFrames
	}
	return &BallTrack{inf: inf, maxOcclusion: maxOcclusionFrames}
}

func (s *BallTrack) Name() string      { return "balltrack" }
func (s *BallTrack) HistoryDepth() int { return 1 }

func (s *BallTrack) Process(ctx context.Context, frame *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	det, err := s.inf.DetectBall(ctx, frame)
	if err != nil {
		return fmt.Errorf("detect ball: %w", err)
	}

	dt := frame.CapturedAt.Sub(s.lastAt).Seconds()
	if s.lastAt.IsZero() || dt <= 0 {
		dt = 1.0 / 30.0
	}

	if det.Confidence >= detectionConfidenceFloor {
		state := models.BallState{
			Known:      true,
			Position:   det.Position,
			Confidence: det.Confidence,
		}
		if s.everSeen {
			state.Velocity = models.Vector{
				X: (det.Position.X - s.last.Position.X) / dt,
				Y: (det.Position.Y - s.last.Position.Y) / dt,
			}
		}
		s.last = state
		s.lastAt = frame.CapturedAt
		s.occluded = 0
		s.everSeen = true
		s.confidence = det.Confidence
		ac.Ball = state
		return nil
	}

	// Occluded frame.
	s.occluded++
	if !s.everSeen || s.occluded > s.maxOcclusion {
		ac.Ball = models.BallState{Known: false}
		return nil
	}

	s.confidence *= occlusionDecay
	predicted := models.BallState{
		Known:     true,
		Predicted: true,
		Position: models.Point{
			X: s.last.Position.X + s.last.Velocity.X*dt,
			Y: s.last.Position.Y + s.last.Velocity.Y*dt,
		},
		Velocity:   s.last.Velocity,
		Confidence: s.confidence,
	}
	s.last.Position = predicted.Position
	s.lastAt = frame.CapturedAt
	ac.Ball = predicted
	return nil
}
