// Package stream contains the per-stream session state machine and the
// supervisor that admits, tracks, and reaps sessions.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/buffer"
	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
)

// maxConsecutiveFullFailures is how many fully-failed frames in a row
// escalate a session from degraded to failed.
const maxConsecutiveFullFailures = 3

// sessionConfig is the resolved per-session configuration.
type sessionConfig struct {
	bufferSize   int
	inboxSize    int
	stageTimeout time.Duration
}

// terminalFunc is called exactly once when the session worker exits, after
// the final status is set. The supervisor uses it to unregister.
type terminalFunc func(s *Session, reason string)

// Session owns one stream's frame buffer, pipeline, and worker goroutine.
// All per-frame work happens on the worker; the only cross-goroutine
// surfaces are the bounded inbox, the control mailbox, and atomic counters.
type Session struct {
	ID        string
	StartedAt time.Time

	cfg   sessionConfig
	ring  *buffer.Ring
	pipe  *pipeline.Pipeline
	pub   Publisher
	log   *zap.Logger
	onEnd terminalFunc

	inbox chan *models.VideoFrame
	ctrl  chan ctrlReq

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status models.SessionStatus
	reason string

	frameCount   atomic.Uint64
	droppedCount atomic.Uint64
	evictedCount atomic.Uint64
	lastFrameAt  atomic.Int64 // unix nano, 0 = no frame yet

	// worker-local state, never touched off the worker goroutine
	lastSeq      uint64
	seenFrame    bool
	consecFailed int
	lastSummary  *models.AnalysisSummary
}

type ctrlReq struct {
	// snapshotK > 0 requests the last k buffered frames (clip export);
	// otherwise the request is a metrics snapshot.
	snapshotK int
	metricsCh chan models.SessionMetrics
	framesCh  chan []*models.VideoFrame
}

func newSession(id string, cfg sessionConfig, pipe *pipeline.Pipeline, pub Publisher, logger *zap.Logger, onEnd terminalFunc) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		StartedAt: time.Now(),
		cfg:       cfg,
		ring:      buffer.NewRing(cfg.bufferSize),
		pipe:      pipe,
		pub:       pub,
		log:       logger.With(zap.String("stream_id", id)),
		onEnd:     onEnd,
		inbox:     make(chan *models.VideoFrame, cfg.inboxSize),
		ctrl:      make(chan ctrlReq),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    models.StatusStarting,
	}
	go s.run()
	return s
}

// Status returns the current lifecycle state.
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastFrameAt returns when the last frame was accepted, zero if none.
func (s *Session) LastFrameAt() time.Time {
	ns := s.lastFrameAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Enqueue hands a frame to the session without blocking. When the inbox is
// full the frame is dropped and counted: staying current beats completeness
// for live analysis. Frames enqueued after the session left a live state
// are dropped the same way.
func (s *Session) Enqueue(frame *models.VideoFrame) {
	if !s.Status().Live() {
		s.droppedCount.Add(1)
		return
	}
	select {
	case s.inbox <- frame:
	default:
		s.droppedCount.Add(1)
	}
}

// Metrics returns a point-in-time snapshot through the worker mailbox, so
// buffer state is read by its owning goroutine. Falls back to a coarse
// snapshot when the worker has already exited.
func (s *Session) Metrics(ctx context.Context) models.SessionMetrics {
	req := ctrlReq{metricsCh: make(chan models.SessionMetrics, 1)}
	select {
	case s.ctrl <- req:
		select {
		case m := <-req.metricsCh:
			return m
		case <-ctx.Done():
		case <-s.done:
		}
	case <-ctx.Done():
	case <-s.done:
	}
	return s.coarseMetrics()
}

// SnapshotFrames returns the most recent k buffered frames for clip export.
func (s *Session) SnapshotFrames(ctx context.Context, k int) ([]*models.VideoFrame, error) {
	req := ctrlReq{snapshotK: k, framesCh: make(chan []*models.VideoFrame, 1)}
	select {
	case s.ctrl <- req:
		select {
		case frames := <-req.framesCh:
			return frames, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrSessionStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionStopped
	}
}

// Stop requests a graceful stop and waits for the worker to finish, bounded
// by one stage timeout. Idempotent: stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.stop(ReasonClientStop, false)
}

// Fail force-stops the session with a failure reason; the supervisor's
// health sweep and the ingestion adapter use this path.
func (s *Session) Fail(reason string) {
	s.stop(reason, true)
}

func (s *Session) stop(reason string, failed bool) {
	s.mu.Lock()
	if s.status == models.StatusStopping || s.status == models.StatusStopped || s.status == models.StatusFailed {
		s.mu.Unlock()
		return
	}
	if failed {
		s.status = models.StatusFailed
	} else {
		s.status = models.StatusStopping
	}
	s.reason = reason
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(s.cfg.stageTimeout + 50*time.Millisecond):
		s.log.Warn("session worker did not stop in time", zap.String("reason", reason))
	}
}

// run is the worker loop: one goroutine owns the ring, the pipeline, and
// all worker-local state, so the hot path takes no locks.
func (s *Session) run() {
	defer close(s.done)
	defer s.finalize()

	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.ctrl:
			s.handleCtrl(req)
		case frame := <-s.inbox:
			s.handleFrame(frame)
		}
	}
}

func (s *Session) handleFrame(frame *models.VideoFrame) {
	// Duplicate or out-of-order frames are dropped and counted, never
	// errors: live ingest tolerates loss and reordering.
	if s.seenFrame && frame.Sequence <= s.lastSeq {
		s.droppedCount.Add(1)
		return
	}
	s.lastSeq = frame.Sequence
	s.seenFrame = true

	// An accepted frame counts immediately, even if the session is torn
	// down mid-pipeline; every frame lands in exactly one counter.
	s.frameCount.Add(1)
	s.lastFrameAt.Store(time.Now().UnixNano())

	s.ring.Push(frame)
	s.evictedCount.Store(s.ring.Evicted())

	ac, fullyFailed := s.pipe.Process(s.ctx, frame, s.ring)
	if s.ctx.Err() != nil {
		return
	}

	s.lastSummary = models.Summarize(ac)

	if fullyFailed {
		s.consecFailed++
		if s.consecFailed >= maxConsecutiveFullFailures {
			s.log.Error("pipeline failed repeatedly, failing session",
				zap.Int("consecutive", s.consecFailed))
			s.failFromWorker(ReasonPipelineFailure)
			return
		}
		if s.transition(models.StatusActive, models.StatusDegraded) ||
			s.transition(models.StatusStarting, models.StatusDegraded) {
			s.pub.Publish(s.ID, EventStreamDegraded, map[string]string{"stream_id": s.ID})
			s.log.Warn("session degraded")
		}
	} else {
		s.consecFailed = 0
		if s.transition(models.StatusStarting, models.StatusActive) {
			s.log.Info("session active")
		} else if s.transition(models.StatusDegraded, models.StatusActive) {
			s.log.Info("session recovered")
		}
	}

	s.pub.Publish(s.ID, EventFrameAnalyzed, s.lastSummary)
}

func (s *Session) handleCtrl(req ctrlReq) {
	if req.snapshotK > 0 {
		req.framesCh <- s.ring.LastN(req.snapshotK)
		return
	}
	m := s.coarseMetrics()
	m.BufferLen = s.ring.Len()
	m.LastSummary = s.lastSummary
	req.metricsCh <- m
}

func (s *Session) coarseMetrics() models.SessionMetrics {
	return models.SessionMetrics{
		StreamID:      s.ID,
		Status:        s.Status(),
		StartedAt:     s.StartedAt,
		LastFrameAt:   s.LastFrameAt(),
		FrameCount:    s.frameCount.Load(),
		DroppedFrames: s.droppedCount.Load(),
		EvictedFrames: s.evictedCount.Load(),
	}
}

// transition moves status from one state to another atomically, reporting
// whether it happened.
func (s *Session) transition(from, to models.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return false
	}
	s.status = to
	return true
}

// failFromWorker marks the session failed from inside the worker loop and
// cancels it; finalize publishes the failure event.
func (s *Session) failFromWorker(reason string) {
	s.mu.Lock()
	s.status = models.StatusFailed
	s.reason = reason
	s.mu.Unlock()
	s.cancel()
}

// finalize releases owned state and publishes the terminal event. Runs on
// the worker goroutine as it unwinds.
func (s *Session) finalize() {
	s.mu.Lock()
	failed := s.status == models.StatusFailed
	if !failed {
		s.status = models.StatusStopped
	}
	reason := s.reason
	s.mu.Unlock()

	s.ring.Reset()

	if failed {
		s.pub.Publish(s.ID, EventStreamFailed, map[string]string{
			"stream_id": s.ID,
			"reason":    reason,
		})
	} else {
		s.pub.Publish(s.ID, EventStreamStopped, map[string]string{"stream_id": s.ID})
	}
	s.log.Info("session ended",
		zap.Bool("failed", failed),
		zap.String("reason", reason),
		zap.Uint64("frames", s.frameCount.Load()),
		zap.Uint64("dropped", s.droppedCount.Load()),
	)
	if s.onEnd != nil {
		s.onEnd(s, reason)
	}
}
