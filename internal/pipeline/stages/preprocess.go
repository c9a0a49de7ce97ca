// Package stages implements the canonical analysis stages in pipeline
// order: preprocess, detect, balltrack, teamclassify, events, formation,
// metrics.
package stages

import (
	"context"
	"fmt"

	"github.com/pitchsight/backend/internal/models"
)

// Analysis resolution all downstream stages assume. Larger frames are
// treated as downscaled to this; the pixel payload itself is opaque here.
const (
	maxAnalysisWidth  = 1280
	maxAnalysisHeight = 720
)

// Preprocess validates frame geometry and normalizes oversized dimensions
// into the context. Stateless.
type Preprocess struct{}

func NewPreprocess() *Preprocess { return &Preprocess{} }

func (s *Preprocess) Name() string      { return "preprocess" }
func (s *Preprocess) HistoryDepth() int { return 0 }

func (s *Preprocess) Process(_ context.Context, frame *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	if frame.Width <= 0 || frame.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	w, h := frame.Width, frame.Height
	for w > maxAnalysisWidth || h > maxAnalysisHeight {
		w /= 2
		h /= 2
	}
	ac.Width = w
	ac.Height = h
	return nil
}
