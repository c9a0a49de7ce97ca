// Package pipeline runs the ordered per-frame analysis stages for one
// stream, isolating stage failures so a broken detector degrades the
// result instead of blocking it.
package pipeline

import (
	"context"
	"errors"

	"github.com/pitchsight/backend/internal/models"
)

// Stage is one analysis step. Implementations mutate ac in place and return
// nil on success, a SkipError to record a deliberate skip, or any other
// error to record a failure. The pipeline enforces the per-invocation
// timeout and panic isolation; stages only need to honor ctx cancellation
// at blocking points.
//
// Stages holding cross-frame state (ball trajectory, previous tracks) own
// that state themselves. Stage instances are constructed per session and
// never shared across streams, and the pipeline never runs two invocations
// of the same stage concurrently: an invocation that overruns its deadline
// blocks the stage (not the pipeline) until it returns.
type Stage interface {
	Name() string
	// HistoryDepth is how many trailing buffered frames (including the
	// current one) Process wants in history. Zero for stateless stages.
	HistoryDepth() int
	Process(ctx context.Context, frame *models.VideoFrame, history []*models.VideoFrame, ac *models.AnalysisContext) error
}

// SkipError marks a stage invocation as deliberately skipped rather than
// failed, e.g. not enough tracked players to classify a formation.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "stage skipped: " + e.Reason }

// Skip returns a SkipError with the given reason.
func Skip(reason string) error { return &SkipError{Reason: reason} }

// IsSkip reports whether err is a SkipError and returns its reason.
func IsSkip(err error) (string, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}
