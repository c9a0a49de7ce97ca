package stages

import (
	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/pipeline"
)

// Default returns the canonical stage order for one stream session. The
// returned stages carry per-stream state and must not be shared.
func Default(inf ml.Inferencer, maxOcclusionFrames int) []pipeline.Stage {
	return []pipeline.Stage{
		NewPreprocess(),
		NewPlayerDetect(inf),
		NewBallTrack(inf, maxOcclusionFrames),
		NewTeamClassify(),
		NewEventDetect(),
		NewFormationAnalysis(),
		NewMetricsCalc(),
	}
}
