package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
)

// capturingPublisher records every published event for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	streamID string
	event    string
	payload  interface{}
}

func (p *capturingPublisher) Publish(streamID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{streamID, event, payload})
}

func (p *capturingPublisher) named(event string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeStage runs a caller-supplied function per frame.
type fakeStage struct {
	name string
	fn   func(ac *models.AnalysisContext) error
}

func (s *fakeStage) Name() string      { return s.name }
func (s *fakeStage) HistoryDepth() int { return 0 }
func (s *fakeStage) Process(_ context.Context, _ *models.VideoFrame, _ []*models.VideoFrame, ac *models.AnalysisContext) error {
	return s.fn(ac)
}

func okStage() pipeline.Stage {
	return &fakeStage{name: "ok", fn: func(*models.AnalysisContext) error { return nil }}
}

func testSessionConfig() sessionConfig {
	return sessionConfig{bufferSize: 32, inboxSize: 8, stageTimeout: 200 * time.Millisecond}
}

func frameAt(seq uint64) *models.VideoFrame {
	return &models.VideoFrame{
		StreamID:   "s1",
		Sequence:   seq,
		CapturedAt: time.Now(),
		Width:      1280,
		Height:     720,
	}
}

func TestSessionGoesActiveOnSuccess(t *testing.T) {
	pub := &capturingPublisher{}
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, pub, zap.NewNop(), nil)
	defer sess.Stop()

	assert.Equal(t, models.StatusStarting, sess.Status())

	sess.Enqueue(frameAt(1))
	require.Eventually(t, func() bool {
		return sess.Status() == models.StatusActive
	}, 2*time.Second, 5*time.Millisecond)

	m := sess.Metrics(context.Background())
	assert.Equal(t, uint64(1), m.FrameCount)
	assert.Equal(t, 1, m.BufferLen)
	require.NotEmpty(t, pub.named(EventFrameAnalyzed))
}

func TestSessionDropsDuplicateAndStaleFrames(t *testing.T) {
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, NopPublisher{}, zap.NewNop(), nil)
	defer sess.Stop()

	sess.Enqueue(frameAt(5))
	require.Eventually(t, func() bool {
		return sess.Metrics(context.Background()).FrameCount == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Duplicate, then older than last seen: both dropped, neither analyzed.
	sess.Enqueue(frameAt(5))
	sess.Enqueue(frameAt(3))
	sess.Enqueue(frameAt(6))

	require.Eventually(t, func() bool {
		return sess.Metrics(context.Background()).FrameCount == 2
	}, 2*time.Second, 5*time.Millisecond)
	m := sess.Metrics(context.Background())
	assert.Equal(t, uint64(2), m.DroppedFrames)
	assert.Equal(t, 2, m.BufferLen)
}

func TestSessionCountsFrameOnAcceptance(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gate := &fakeStage{name: "gate", fn: func(*models.AnalysisContext) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}}
	defer close(release)

	cfg := testSessionConfig()
	cfg.stageTimeout = 10 * time.Second
	pipe := pipeline.New([]pipeline.Stage{gate}, cfg.stageTimeout, zap.NewNop())
	sess := newSession("s1", cfg, pipe, NopPublisher{}, zap.NewNop(), nil)

	sess.Enqueue(frameAt(1))
	<-entered

	// The worker is mid-pipeline; the coarse snapshot must already show
	// the frame as accepted.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	m := sess.Metrics(canceled)
	assert.Equal(t, uint64(1), m.FrameCount)
	assert.NotZero(t, sess.LastFrameAt())

	// A stop that interrupts the pipeline must not lose the count: the
	// frame stays processed, not dropped.
	sess.Stop()
	m = sess.Metrics(context.Background())
	assert.Equal(t, uint64(1), m.FrameCount)
	assert.Equal(t, uint64(0), m.DroppedFrames)
}

func TestSessionDegradesAndRecovers(t *testing.T) {
	var mu sync.Mutex
	fail := true
	st := &fakeStage{name: "flaky", fn: func(*models.AnalysisContext) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("detector offline")
		}
		return nil
	}}

	pub := &capturingPublisher{}
	pipe := pipeline.New([]pipeline.Stage{st}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, pub, zap.NewNop(), nil)
	defer sess.Stop()

	sess.Enqueue(frameAt(1))
	require.Eventually(t, func() bool {
		return sess.Status() == models.StatusDegraded
	}, 2*time.Second, 5*time.Millisecond)
	require.NotEmpty(t, pub.named(EventStreamDegraded))

	mu.Lock()
	fail = false
	mu.Unlock()

	sess.Enqueue(frameAt(2))
	require.Eventually(t, func() bool {
		return sess.Status() == models.StatusActive
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionFailsAfterConsecutiveFullFailures(t *testing.T) {
	st := &fakeStage{name: "broken", fn: func(*models.AnalysisContext) error {
		return errors.New("permanently broken")
	}}

	pub := &capturingPublisher{}
	var endedReason string
	ended := make(chan struct{})
	onEnd := func(_ *Session, reason string) {
		endedReason = reason
		close(ended)
	}

	pipe := pipeline.New([]pipeline.Stage{st}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, pub, zap.NewNop(), onEnd)

	for seq := uint64(1); seq <= maxConsecutiveFullFailures; seq++ {
		sess.Enqueue(frameAt(seq))
	}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not fail after repeated pipeline failures")
	}
	assert.Equal(t, models.StatusFailed, sess.Status())
	assert.Equal(t, ReasonPipelineFailure, endedReason)

	failures := pub.named(EventStreamFailed)
	require.Len(t, failures, 1)
	payload, ok := failures[0].payload.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, ReasonPipelineFailure, payload["reason"])
}

func TestSessionStopIsIdempotent(t *testing.T) {
	pub := &capturingPublisher{}
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, pub, zap.NewNop(), nil)

	sess.Stop()
	sess.Stop()
	sess.Fail(ReasonTransportError)

	assert.Equal(t, models.StatusStopped, sess.Status())
	assert.Len(t, pub.named(EventStreamStopped), 1)
	assert.Empty(t, pub.named(EventStreamFailed))
}

func TestSessionRejectsFramesAfterStop(t *testing.T) {
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, NopPublisher{}, zap.NewNop(), nil)

	sess.Stop()
	sess.Enqueue(frameAt(1))

	m := sess.Metrics(context.Background())
	assert.Equal(t, uint64(0), m.FrameCount)
	assert.Equal(t, uint64(1), m.DroppedFrames)
}

func TestSessionSnapshotFrames(t *testing.T) {
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, NopPublisher{}, zap.NewNop(), nil)
	defer sess.Stop()

	for seq := uint64(1); seq <= 5; seq++ {
		sess.Enqueue(frameAt(seq))
		require.Eventually(t, func() bool {
			return sess.Metrics(context.Background()).FrameCount == seq
		}, 2*time.Second, 5*time.Millisecond)
	}

	frames, err := sess.SnapshotFrames(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, uint64(3), frames[0].Sequence)
	assert.Equal(t, uint64(5), frames[2].Sequence)
}

func TestSessionSnapshotAfterStopReturnsError(t *testing.T) {
	pipe := pipeline.New([]pipeline.Stage{okStage()}, 200*time.Millisecond, zap.NewNop())
	sess := newSession("s1", testSessionConfig(), pipe, NopPublisher{}, zap.NewNop(), nil)
	sess.Stop()

	_, err := sess.SnapshotFrames(context.Background(), 3)
	assert.ErrorIs(t, err, ErrSessionStopped)
}
