package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/models"
)

// scriptedBall returns pre-scripted ball detections in call order.
type scriptedBall struct {
	detections []ml.BallDetection
	call       int
}

func (s *scriptedBall) DetectPlayers(context.Context, *models.VideoFrame) ([]ml.PlayerDetection, error) {
	return nil, nil
}

func (s *scriptedBall) DetectBall(context.Context, *models.VideoFrame) (ml.BallDetection, error) {
	d := s.detections[s.call]
	if s.call < len(s.detections)-1 {
		s.call++
	}
	return d, nil
}

func runBallFrames(t *testing.T, stage *BallTrack, n int, startSeq uint64, startAt time.Time) []models.BallState {
	t.Helper()
	out := make([]models.BallState, 0, n)
	for i := 0; i < n; i++ {
		f := &models.VideoFrame{
			StreamID:   "s1",
			Sequence:   startSeq + uint64(i),
			CapturedAt: startAt.Add(time.Duration(i) * time.Second / 30),
			Width:      1920, Height: 1080,
		}
		ac := models.NewAnalysisContext(f)
		require.NoError(t, stage.Process(context.Background(), f, nil, ac))
		out = append(out, ac.Ball)
	}
	return out
}

func TestBallTrackPredictsThroughOcclusion(t *testing.T) {
	// 10 confident frames moving +1m/frame in X, then occlusion.
	var script []ml.BallDetection
	for i := 0; i < 10; i++ {
		script = append(script, ml.BallDetection{
			Position:   models.Point{X: float64(10 + i), Y: 30},
			Confidence: 0.9,
		})
	}
	for i := 0; i < 10; i++ {
		script = append(script, ml.BallDetection{Confidence: 0})
	}

	stage := NewBallTrack(&scriptedBall{detections: script}, 3)
	t0 := time.Now()

	states := runBallFrames(t, stage, 13, 1, t0)

	// Detected frames.
	for i := 0; i < 10; i++ {
		assert.True(t, states[i].Known, "frame %d", i)
		assert.False(t, states[i].Predicted, "frame %d", i)
		assert.InDelta(t, 0.9, states[i].Confidence, 1e-9)
	}

	// Three occluded frames: predicted positions continue at the last
	// velocity (~30 m/s in X at 30fps => +1m per frame) with decaying
	// confidence.
	lastConf := 0.9
	for i := 10; i < 13; i++ {
		st := states[i]
		assert.True(t, st.Known, "occluded frame %d still predicted", i)
		assert.True(t, st.Predicted, "occluded frame %d", i)
		assert.Less(t, st.Confidence, lastConf, "confidence decays each occluded frame")
		expectedX := float64(19 + (i - 9))
		assert.InDelta(t, expectedX, st.Position.X, 0.2)
		lastConf = st.Confidence
	}

	// Past the occlusion window the position is unknown, not a guess.
	final := runBallFrames(t, stage, 1, 14, t0.Add(13*time.Second/30))
	assert.False(t, final[0].Known)
	assert.False(t, final[0].Predicted)
}

func TestBallTrackUnknownBeforeFirstDetection(t *testing.T) {
	stage := NewBallTrack(&scriptedBall{detections: []ml.BallDetection{{Confidence: 0}}}, 5)
	states := runBallFrames(t, stage, 3, 1, time.Now())
	for i, st := range states {
		assert.False(t, st.Known, "frame %d: nothing to predict from", i)
	}
}

func TestBallTrackRecoversAfterOcclusion(t *testing.T) {
	script := []ml.BallDetection{
		{Position: models.Point{X: 10, Y: 30}, Confidence: 0.9},
		{Position: models.Point{X: 11, Y: 30}, Confidence: 0.9},
		{Confidence: 0},
		{Position: models.Point{X: 14, Y: 30}, Confidence: 0.85},
	}
	stage := NewBallTrack(&scriptedBall{detections: script}, 5)
	states := runBallFrames(t, stage, 4, 1, time.Now())

	assert.True(t, states[2].Predicted)
	assert.False(t, states[3].Predicted, "fresh detection ends occlusion")
	assert.InDelta(t, 0.85, states[3].Confidence, 1e-9)
	assert.InDelta(t, 14, states[3].Position.X, 1e-9)
}
