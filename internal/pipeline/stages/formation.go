package stages

import (
	"context"
	"fmt"
	"sort"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
)

// minPlayersForShape is the outfield count below which a formation string
// is meaningless.
const minPlayersForShape = 7

// pitchLengthM is the nominal pitch length used to decide which half a
// team is massed in.
const pitchLengthM = 105.0

// FormationAnalysis classifies each team's shape by bucketing outfield
// players into defensive, middle, and attacking thirds of the team's own
// depth. Stateless; operates only on the current frame's tracks.
type FormationAnalysis struct{}

func NewFormationAnalysis() *FormationAnalysis { return &FormationAnalysis{} }

func (s *FormationAnalysis) Name() string      { return "formation" }
func (s *FormationAnalysis) HistoryDepth() int { return 0 }

func (s *FormationAnalysis) Process(_ context.Context, _ *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	home := teamPositions(ac.Players, models.TeamHome)
	away := teamPositions(ac.Players, models.TeamAway)
	if len(home) < minPlayersForShape && len(away) < minPlayersForShape {
		return pipeline.Skip("too few classified players")
	}
	if len(home) >= minPlayersForShape {
		ac.Formation.Home = shape(home)
	}
	if len(away) >= minPlayersForShape {
		ac.Formation.Away = shape(away)
	}
	return nil
}

func teamPositions(players []models.PlayerTrack, team models.Team) []float64 {
	var xs []float64
	for _, p := range players {
		if p.Team == team {
			xs = append(xs, p.Position.X)
		}
	}
	return xs
}

// shape buckets depth-sorted X positions into thirds of the team's own
// span, deepest third first. Which end is "deep" follows from the team
// centroid: a team massed in the low-X half attacks toward high X, so its
// keeper is the lowest X and defenders bucket from there; the other team
// mirrors. The deepest player is dropped as the keeper.
func shape(xs []float64) string {
	sort.Float64s(xs)
	var sum float64
	for _, x := range xs {
		sum += x
	}
	attackingRight := sum/float64(len(xs)) <= pitchLengthM/2

	outfield := xs
	if attackingRight {
		outfield = xs[1:]
	} else {
		outfield = xs[:len(xs)-1]
	}
	lo, hi := outfield[0], outfield[len(outfield)-1]
	span := hi - lo
	if span <= 0 {
		return ""
	}
	var def, mid, fwd int
	for _, x := range outfield {
		rel := (x - lo) / span
		if !attackingRight {
			rel = 1 - rel
		}
		switch {
		case rel < 1.0/3:
			def++
		case rel < 2.0/3:
			mid++
		default:
			fwd++
		}
	}
	return fmt.Sprintf("%d-%d-%d", def, mid, fwd)
}
