package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/buffer"
	"github.com/pitchsight/backend/internal/models"
)

// DefaultStageTimeout bounds one stage invocation when no override is set.
const DefaultStageTimeout = 200 * time.Millisecond

// Pipeline executes its stages strictly in order for each frame. A failed
// or timed-out stage contributes nothing: the next stage receives the
// context as of the last successful stage, and the failure is recorded in
// the context's stage-status map.
type Pipeline struct {
	stages       []Stage
	stageTimeout time.Duration
	maxDepth     int
	logger       *zap.Logger

	// pending[i] holds the done channel of an abandoned invocation of
	// stage i that has not finished yet. Stages carry per-session state,
	// so a stage is never re-entered while a previous invocation is still
	// running; until it drains, the stage fails fast for each frame.
	pending []chan error
}

// New creates a pipeline over the given ordered stages. stageTimeout <= 0
// falls back to DefaultStageTimeout.
func New(stages []Stage, stageTimeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	maxDepth := 0
	for _, s := range stages {
		if d := s.HistoryDepth(); d > maxDepth {
			maxDepth = d
		}
	}
	return &Pipeline{
		stages:       stages,
		stageTimeout: stageTimeout,
		maxDepth:     maxDepth,
		logger:       logger,
		pending:      make([]chan error, len(stages)),
	}
}

// Process runs all stages for one frame. History is fetched from the ring
// once, sized to the deepest stage requirement. The returned context always
// carries frame metadata; fullyFailed is true when every stage failed, in
// which case the context is the degraded metadata-only result.
func (p *Pipeline) Process(ctx context.Context, frame *models.VideoFrame, ring *buffer.Ring) (*models.AnalysisContext, bool) {
	var history []*models.VideoFrame
	if p.maxDepth > 0 {
		history = ring.LastN(p.maxDepth)
	}

	ac := models.NewAnalysisContext(frame)
	anySucceeded := false

	for i, stage := range p.stages {
		if ch := p.pending[i]; ch != nil {
			select {
			case <-ch:
				p.pending[i] = nil
			default:
				ac.Stages[stage.Name()] = models.StageStatus{
					Outcome: models.StageFailed,
					Detail:  "previous invocation still running",
				}
				continue
			}
		}

		hist := history
		if d := stage.HistoryDepth(); d == 0 {
			hist = nil
		} else if d < len(history) {
			hist = history[len(history)-d:]
		}

		candidate := ac.Clone()
		inflight, err := p.runStage(ctx, stage, frame, hist, candidate)
		if inflight != nil {
			p.pending[i] = inflight
		}
		switch {
		case err == nil:
			ac = candidate
			ac.Stages[stage.Name()] = models.StageStatus{Outcome: models.StageSuccess}
			anySucceeded = true
		default:
			if reason, ok := IsSkip(err); ok {
				ac.Stages[stage.Name()] = models.StageStatus{Outcome: models.StageSkipped, Detail: reason}
				continue
			}
			ac.Stages[stage.Name()] = models.StageStatus{Outcome: models.StageFailed, Detail: err.Error()}
			p.logger.Warn("stage failed",
				zap.String("stream_id", frame.StreamID),
				zap.Uint64("sequence", frame.Sequence),
				zap.String("stage", stage.Name()),
				zap.Error(err),
			)
		}
	}

	if !anySucceeded {
		ac.Degraded = true
	}
	return ac, !anySucceeded
}

// runStage executes one stage under its own timeout with panic isolation.
// A stage that overruns its deadline is abandoned: the pipeline moves on
// and the stage goroutine unwinds when it next observes ctx. The returned
// inflight channel is non-nil exactly when the goroutine was abandoned;
// the caller must not invoke the stage again until it drains, since the
// late goroutine still holds the stage's per-session state.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, frame *models.VideoFrame, history []*models.VideoFrame, ac *models.AnalysisContext) (inflight chan error, err error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)

	done := make(chan error, 1)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("stage panic: %v", r)
			}
		}()
		done <- stage.Process(stageCtx, frame, history, ac)
	}()

	select {
	case err := <-done:
		return nil, err
	case <-stageCtx.Done():
		return done, fmt.Errorf("stage %s: %w", stage.Name(), stageCtx.Err())
	}
}

// StageNames returns the configured stage order, for diagnostics.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
