package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchsight/backend/internal/buffer"
	"github.com/pitchsight/backend/internal/models"
)

type countingStage struct {
	name    string
	depth   int
	calls   int
	gotHist int
	fn      func(ctx context.Context, ac *models.AnalysisContext) error
}

func (s *countingStage) Name() string      { return s.name }
func (s *countingStage) HistoryDepth() int { return s.depth }
func (s *countingStage) Process(ctx context.Context, _ *models.VideoFrame, history []*models.VideoFrame, ac *models.AnalysisContext) error {
	s.calls++
	s.gotHist = len(history)
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, ac)
}

func addPlayer(id int) func(context.Context, *models.AnalysisContext) error {
	return func(_ context.Context, ac *models.AnalysisContext) error {
		ac.Players = append(ac.Players, models.PlayerTrack{TrackID: id})
		return nil
	}
}

func testFrame(seq uint64) *models.VideoFrame {
	return &models.VideoFrame{StreamID: "s1", Sequence: seq, CapturedAt: time.Now(), Width: 1920, Height: 1080}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	var order []string
	mk := func(name string) *countingStage {
		return &countingStage{name: name, fn: func(_ context.Context, _ *models.AnalysisContext) error {
			order = append(order, name)
			return nil
		}}
	}
	p := New([]Stage{mk("a"), mk("b"), mk("c")}, time.Second, nil)

	ring := buffer.NewRing(10)
	f := testFrame(1)
	ring.Push(f)
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	assert.False(t, fullyFailed)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, models.StageSuccess, ac.Stages[name].Outcome)
	}
}

func TestPipelineFailedStageDoesNotEraseProgress(t *testing.T) {
	first := &countingStage{name: "first", fn: addPlayer(1)}
	bad := &countingStage{name: "bad", fn: func(_ context.Context, ac *models.AnalysisContext) error {
		ac.Players = nil // mutation must be discarded on failure
		return errors.New("detector offline")
	}}
	last := &countingStage{name: "last", fn: addPlayer(2)}
	p := New([]Stage{first, bad, last}, time.Second, nil)

	ring := buffer.NewRing(10)
	f := testFrame(1)
	ring.Push(f)
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	assert.False(t, fullyFailed)
	assert.Equal(t, 1, last.calls, "stage after a failure still runs")
	require.Len(t, ac.Players, 2, "failed stage contributed nothing, prior progress kept")
	assert.Equal(t, models.StageFailed, ac.Stages["bad"].Outcome)
	assert.Contains(t, ac.Stages["bad"].Detail, "detector offline")
	assert.False(t, ac.Degraded)
}

func TestPipelineAllStagesFailedIsDegraded(t *testing.T) {
	fail := func(_ context.Context, _ *models.AnalysisContext) error { return errors.New("boom") }
	p := New([]Stage{
		&countingStage{name: "a", fn: fail},
		&countingStage{name: "b", fn: fail},
	}, time.Second, nil)

	ring := buffer.NewRing(10)
	f := testFrame(7)
	ring.Push(f)
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	assert.True(t, fullyFailed)
	assert.True(t, ac.Degraded)
	// Frame metadata survives in the degraded result.
	assert.Equal(t, uint64(7), ac.Sequence)
	assert.Equal(t, "s1", ac.StreamID)
}

func TestPipelineStageTimeoutTreatedAsFailure(t *testing.T) {
	slow := &countingStage{name: "slow", fn: func(ctx context.Context, _ *models.AnalysisContext) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	after := &countingStage{name: "after", fn: addPlayer(1)}
	p := New([]Stage{slow, after}, 20*time.Millisecond, nil)

	ring := buffer.NewRing(10)
	f := testFrame(1)
	ring.Push(f)
	start := time.Now()
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	assert.Less(t, time.Since(start), time.Second, "pipeline must not wait out the slow stage")
	assert.False(t, fullyFailed)
	assert.Equal(t, models.StageFailed, ac.Stages["slow"].Outcome)
	assert.Equal(t, models.StageSuccess, ac.Stages["after"].Outcome)
	assert.Len(t, ac.Players, 1)
}

func TestPipelineDoesNotReenterOverrunningStage(t *testing.T) {
	// A stateful stage whose invocation returns long after the deadline
	// must not run concurrently with its own next invocation.
	release := make(chan struct{})
	var calls atomic.Int32
	slow := &countingStage{name: "slow", fn: func(_ context.Context, _ *models.AnalysisContext) error {
		calls.Add(1)
		<-release
		return nil
	}}
	p := New([]Stage{slow}, 20*time.Millisecond, nil)

	ring := buffer.NewRing(32)
	f1 := testFrame(1)
	ring.Push(f1)
	ac1, _ := p.Process(context.Background(), f1, ring)
	assert.Equal(t, models.StageFailed, ac1.Stages["slow"].Outcome)

	// Next frame arrives while the abandoned invocation is still blocked:
	// the stage fails fast instead of being entered a second time.
	f2 := testFrame(2)
	ring.Push(f2)
	ac2, fullyFailed := p.Process(context.Background(), f2, ring)
	assert.True(t, fullyFailed)
	assert.Equal(t, models.StageFailed, ac2.Stages["slow"].Outcome)
	assert.Equal(t, "previous invocation still running", ac2.Stages["slow"].Detail)
	assert.Equal(t, int32(1), calls.Load())

	// Once the overrunning invocation returns, the stage runs again.
	close(release)
	seq := uint64(3)
	require.Eventually(t, func() bool {
		f := testFrame(seq)
		seq++
		ring.Push(f)
		ac, _ := p.Process(context.Background(), f, ring)
		return ac.Stages["slow"].Outcome == models.StageSuccess
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPipelineStagePanicIsIsolated(t *testing.T) {
	p := New([]Stage{
		&countingStage{name: "panicky", fn: func(_ context.Context, _ *models.AnalysisContext) error {
			panic("nil map write")
		}},
		&countingStage{name: "after", fn: addPlayer(1)},
	}, time.Second, nil)

	ring := buffer.NewRing(10)
	f := testFrame(1)
	ring.Push(f)
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	assert.False(t, fullyFailed)
	assert.Equal(t, models.StageFailed, ac.Stages["panicky"].Outcome)
	assert.Contains(t, ac.Stages["panicky"].Detail, "panic")
	assert.Len(t, ac.Players, 1)
}

func TestPipelineSkippedStage(t *testing.T) {
	p := New([]Stage{
		&countingStage{name: "skipper", fn: func(_ context.Context, _ *models.AnalysisContext) error {
			return Skip("not enough players")
		}},
	}, time.Second, nil)

	ring := buffer.NewRing(10)
	f := testFrame(1)
	ring.Push(f)
	ac, fullyFailed := p.Process(context.Background(), f, ring)

	// A skip is deliberate, not a failure, but contributes no success
	// either: a frame where everything skipped has no analysis content.
	assert.True(t, fullyFailed)
	assert.Equal(t, models.StageSkipped, ac.Stages["skipper"].Outcome)
	assert.Equal(t, "not enough players", ac.Stages["skipper"].Detail)
}

func TestPipelineHistorySlicing(t *testing.T) {
	shallow := &countingStage{name: "shallow", depth: 2}
	deep := &countingStage{name: "deep", depth: 5}
	stateless := &countingStage{name: "stateless", depth: 0}
	p := New([]Stage{shallow, deep, stateless}, time.Second, nil)

	ring := buffer.NewRing(10)
	var f *models.VideoFrame
	for seq := uint64(1); seq <= 3; seq++ {
		f = testFrame(seq)
		ring.Push(f)
	}
	p.Process(context.Background(), f, ring)

	assert.Equal(t, 2, shallow.gotHist)
	assert.Equal(t, 3, deep.gotHist, "only 3 frames buffered")
	assert.Equal(t, 0, stateless.gotHist)
}

func TestIsSkip(t *testing.T) {
	reason, ok := IsSkip(Skip("why"))
	assert.True(t, ok)
	assert.Equal(t, "why", reason)

	_, ok = IsSkip(errors.New("plain"))
	assert.False(t, ok)
}
