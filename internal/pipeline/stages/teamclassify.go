package stages

import (
	"context"
	"math"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
)

// TeamClassify assigns each tracked player to home or away by 1-D 2-means
// clustering on jersey hue. The lower-hue centroid is always home, which
// keeps assignments stable across frames without carrying state.
type TeamClassify struct{}

func NewTeamClassify() *TeamClassify { return &TeamClassify{} }

func (s *TeamClassify) Name() string      { return "teamclassify" }
func (s *TeamClassify) HistoryDepth() int { return 0 }

func (s *TeamClassify) Process(_ context.Context, _ *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	if len(ac.Players) < 2 {
		return pipeline.Skip("not enough players to cluster")
	}

	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, p := range ac.Players {
		if p.JerseyHue < lo {
			lo = p.JerseyHue
		}
		if p.JerseyHue > hi {
			hi = p.JerseyHue
		}
	}
	if hi-lo < 1 {
		return pipeline.Skip("jersey hues indistinguishable")
	}

	cHome, cAway := lo, hi
	for iter := 0; iter < 10; iter++ {
		var sumH, sumA float64
		var nH, nA int
		for _, p := range ac.Players {
			if math.Abs(p.JerseyHue-cHome) <= math.Abs(p.JerseyHue-cAway) {
				sumH += p.JerseyHue
				nH++
			} else {
				sumA += p.JerseyHue
				nA++
			}
		}
		if nH == 0 || nA == 0 {
			break
		}
		newHome, newAway := sumH/float64(nH), sumA/float64(nA)
		if newHome == cHome && newAway == cAway {
			break
		}
		cHome, cAway = newHome, newAway
	}
	if cHome > cAway {
		cHome, cAway = cAway, cHome
	}

	for i := range ac.Players {
		if math.Abs(ac.Players[i].JerseyHue-cHome) <= math.Abs(ac.Players[i].JerseyHue-cAway) {
			ac.Players[i].Team = models.TeamHome
		} else {
			ac.Players[i].Team = models.TeamAway
		}
	}
	return nil
}
