package stages

import (
	"context"
	"math"

	"github.com/pitchsight/backend/internal/models"
)

// MetricsCalc aggregates possession and spatial metrics from whatever the
// earlier stages managed to produce. It never fails: partial context in,
// partial metrics out.
type MetricsCalc struct{}

func NewMetricsCalc() *MetricsCalc { return &MetricsCalc{} }

func (s *MetricsCalc) Name() string      { return "metrics" }
func (s *MetricsCalc) HistoryDepth() int { return 0 }

func (s *MetricsCalc) Process(_ context.Context, _ *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	m := models.FrameMetrics{
		PossessionTeam: models.TeamUnknown,
		TrackedPlayers: len(ac.Players),
	}

	if ac.Ball.Known {
		if id := nearestTrackID(ac.Players, ac.Ball.Position); id >= 0 {
			for _, p := range ac.Players {
				if p.TrackID == id {
					m.PossessionTeam = p.Team
					break
				}
			}
		}
	}

	m.HomeSpreadM = spread(ac.Players, models.TeamHome)
	m.AwaySpreadM = spread(ac.Players, models.TeamAway)

	ac.Metrics = m
	return nil
}

// spread is the RMS distance of a team's players from their centroid.
func spread(players []models.PlayerTrack, team models.Team) float64 {
	var xs, ys []float64
	for _, p := range players {
		if p.Team == team {
			xs = append(xs, p.Position.X)
			ys = append(ys, p.Position.Y)
		}
	}
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var cx, cy float64
	for i := range xs {
		cx += xs[i]
		cy += ys[i]
	}
	cx /= n
	cy /= n
	var sum float64
	for i := range xs {
		dx, dy := xs[i]-cx, ys[i]-cy
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / n)
}
