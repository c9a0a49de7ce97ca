package ml

import (
	"context"
	"math"

	"github.com/pitchsight/backend/internal/models"
)

// Synthetic is a deterministic in-process Inferencer for development and
// tests. It places a fixed number of players on the pitch and moves the
// ball along a sine path, keyed by the frame sequence so results are
// reproducible.
type Synthetic struct {
	// Players per team to synthesize. Defaults to 10 when zero.
	PlayersPerTeam int
}

const (
	pitchWidth  = 105.0
	pitchHeight = 68.0
)

func (s *Synthetic) playersPerTeam() int {
	if s.PlayersPerTeam <= 0 {
		return 10
	}
	return s.PlayersPerTeam
}

func (s *Synthetic) DetectPlayers(_ context.Context, frame *models.VideoFrame) ([]PlayerDetection, error) {
	n := s.playersPerTeam()
	t := float64(frame.Sequence) / 30.0
	out := make([]PlayerDetection, 0, 2*n)
	for team := 0; team < 2; team++ {
		hue := 10.0
		baseX := pitchWidth * 0.25
		if team == 1 {
			hue = 220.0
			baseX = pitchWidth * 0.75
		}
		for i := 0; i < n; i++ {
			phase := t + float64(i)
			out = append(out, PlayerDetection{
				Position: models.Point{
					X: baseX + 8*math.Sin(phase),
					Y: pitchHeight * (float64(i) + 0.5) / float64(n),
				},
				Confidence: 0.95,
				JerseyHue:  hue,
			})
		}
	}
	return out, nil
}

func (s *Synthetic) DetectBall(_ context.Context, frame *models.VideoFrame) (BallDetection, error) {
	t := float64(frame.Sequence) / 30.0
	return BallDetection{
		Position: models.Point{
			X: pitchWidth/2 + 20*math.Sin(t/2),
			Y: pitchHeight/2 + 10*math.Cos(t/3),
		},
		Confidence: 0.9,
	}, nil
}
