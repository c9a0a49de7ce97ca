package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/config"
	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/pipeline"
	"github.com/pitchsight/backend/internal/pipeline/stages"
)

// Auditor persists session lifecycle records. Implementations must tolerate
// being called from supervisor goroutines; a nil Auditor disables auditing.
type Auditor interface {
	SessionStarted(ctx context.Context, streamID string, at time.Time) (uuid.UUID, error)
	SessionEnded(ctx context.Context, recordID uuid.UUID, finalStatus models.SessionStatus, reason string, frames, dropped uint64)
}

// Supervisor admits streams against the concurrency ceiling, owns the
// registry of live sessions, and reaps idle ones. It is the only component
// that removes a session from the registry, which is what makes
// stop-vs-lookup races impossible.
type Supervisor struct {
	cfg config.StreamConfig
	inf ml.Inferencer
	pub Publisher
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	auditIDs map[string]uuid.UUID

	audit Auditor

	started  atomic.Uint64
	stopped  atomic.Uint64
	rejected atomic.Uint64
	timedOut atomic.Uint64
	failed   atomic.Uint64
}

// NewSupervisor creates the process-wide stream supervisor. inf is the
// shared, concurrency-bounded inference client; pub receives all outbound
// events; audit may be nil.
func NewSupervisor(cfg config.StreamConfig, inf ml.Inferencer, pub Publisher, audit Auditor, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Supervisor{
		cfg:      cfg,
		inf:      inf,
		pub:      pub,
		log:      logger,
		sessions: make(map[string]*Session),
		auditIDs: make(map[string]uuid.UUID),
		audit:    audit,
	}
}

// StartStream admits a new stream. Returns ErrCapacityExceeded when live
// sessions are at the ceiling and ErrStreamExists on an ID collision.
// A generated UUID is used when cfg.StreamID is empty.
func (sv *Supervisor) StartStream(ctx context.Context, cfg models.StreamConfig) (*Session, error) {
	id := cfg.StreamID
	if id == "" {
		id = uuid.New().String()
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = sv.cfg.BufferSize
	}

	sv.mu.Lock()
	if _, exists := sv.sessions[id]; exists {
		sv.mu.Unlock()
		return nil, ErrStreamExists
	}
	live := 0
	for _, s := range sv.sessions {
		if s.Status().Live() {
			live++
		}
	}
	if live >= sv.cfg.MaxConcurrentStreams {
		sv.mu.Unlock()
		sv.rejected.Add(1)
		sv.log.Warn("stream rejected at capacity",
			zap.String("stream_id", id),
			zap.Int("max", sv.cfg.MaxConcurrentStreams))
		return nil, ErrCapacityExceeded
	}

	pipe := pipeline.New(stages.Default(sv.inf, sv.cfg.MaxOcclusionFrames), sv.cfg.StageTimeout, sv.log)
	sess := newSession(id, sessionConfig{
		bufferSize:   bufSize,
		inboxSize:    sv.cfg.InboxSize,
		stageTimeout: sv.cfg.StageTimeout,
	}, pipe, sv.pub, sv.log, sv.onSessionEnd)
	sv.sessions[id] = sess
	sv.mu.Unlock()

	sv.started.Add(1)
	if sv.audit != nil {
		if recID, err := sv.audit.SessionStarted(ctx, id, sess.StartedAt); err == nil {
			sv.mu.Lock()
			sv.auditIDs[id] = recID
			sv.mu.Unlock()
		} else {
			sv.log.Warn("session audit insert failed", zap.String("stream_id", id), zap.Error(err))
		}
	}

	sv.pub.Publish(id, EventStreamStarted, map[string]string{"stream_id": id})
	sv.log.Info("stream started", zap.String("stream_id", id), zap.Int("buffer_size", bufSize))
	return sess, nil
}

// StopStream stops a stream gracefully. Stopping an unknown or already
// stopped stream is not an error.
func (sv *Supervisor) StopStream(id string) {
	sv.mu.Lock()
	sess := sv.sessions[id]
	sv.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Stop()
}

// Lookup returns the live session for id, or ErrUnknownStream.
func (sv *Supervisor) Lookup(id string) (*Session, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sess, ok := sv.sessions[id]
	if !ok {
		return nil, ErrUnknownStream
	}
	return sess, nil
}

// Metrics returns the metrics snapshot for one stream.
func (sv *Supervisor) Metrics(ctx context.Context, id string) (models.SessionMetrics, error) {
	sess, err := sv.Lookup(id)
	if err != nil {
		return models.SessionMetrics{}, err
	}
	return sess.Metrics(ctx), nil
}

// ListActive returns metrics snapshots for all registered sessions.
func (sv *Supervisor) ListActive(ctx context.Context) []models.SessionMetrics {
	sv.mu.Lock()
	sessions := make([]*Session, 0, len(sv.sessions))
	for _, s := range sv.sessions {
		sessions = append(sessions, s)
	}
	sv.mu.Unlock()

	out := make([]models.SessionMetrics, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Metrics(ctx))
	}
	return out
}

// Stats aggregates supervisor-level counters.
func (sv *Supervisor) Stats(ctx context.Context) models.SupervisorStats {
	var frames, dropped uint64
	sv.mu.Lock()
	active := 0
	for _, s := range sv.sessions {
		if s.Status().Live() {
			active++
		}
		frames += s.frameCount.Load()
		dropped += s.droppedCount.Load()
	}
	sv.mu.Unlock()

	return models.SupervisorStats{
		ActiveStreams:  active,
		MaxStreams:     sv.cfg.MaxConcurrentStreams,
		TotalStarted:   sv.started.Load(),
		TotalStopped:   sv.stopped.Load(),
		TotalRejected:  sv.rejected.Load(),
		TotalFrames:    frames,
		TotalDropped:   dropped,
		TimedOutStops:  sv.timedOut.Load(),
		FailedSessions: sv.failed.Load(),
	}
}

// Run drives the periodic health sweep until ctx is cancelled, then stops
// every remaining session.
func (sv *Supervisor) Run(ctx context.Context) {
	interval := sv.cfg.FrameTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sv.Shutdown()
			return
		case <-ticker.C:
			sv.sweep()
		}
	}
}

// sweep force-stops sessions with no frames for longer than FrameTimeout.
// Idleness is an ingestion failure, not a pipeline failure, so the session
// fails with an ingestion reason and emits stream_failed.
func (sv *Supervisor) sweep() {
	deadline := time.Now().Add(-sv.cfg.FrameTimeout)
	sv.mu.Lock()
	var idle []*Session
	for _, s := range sv.sessions {
		if !s.Status().Live() {
			continue
		}
		last := s.LastFrameAt()
		if last.IsZero() {
			last = s.StartedAt
		}
		if last.Before(deadline) {
			idle = append(idle, s)
		}
	}
	sv.mu.Unlock()

	for _, s := range idle {
		sv.timedOut.Add(1)
		sv.log.Warn("stream idle past frame timeout, stopping",
			zap.String("stream_id", s.ID),
			zap.Duration("timeout", sv.cfg.FrameTimeout))
		s.Fail(ReasonIngestionTimeout)
	}
}

// Shutdown stops all sessions. Used on process exit.
func (sv *Supervisor) Shutdown() {
	sv.mu.Lock()
	sessions := make([]*Session, 0, len(sv.sessions))
	for _, s := range sv.sessions {
		sessions = append(sessions, s)
	}
	sv.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// onSessionEnd unregisters a finished session and finalizes its audit row.
// Runs on the session's worker goroutine as it unwinds.
func (sv *Supervisor) onSessionEnd(s *Session, reason string) {
	final := s.Status()
	sv.mu.Lock()
	delete(sv.sessions, s.ID)
	recID, hadAudit := sv.auditIDs[s.ID]
	delete(sv.auditIDs, s.ID)
	sv.mu.Unlock()

	sv.stopped.Add(1)
	if final == models.StatusFailed {
		sv.failed.Add(1)
	}
	if sv.audit != nil && hadAudit {
		sv.audit.SessionEnded(context.Background(), recID, final, reason,
			s.frameCount.Load(), s.droppedCount.Load())
	}
}
