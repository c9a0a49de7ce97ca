// Package ingest receives decoded frames from the transport layer and
// routes them to the owning stream session. Transport negotiation (WebRTC,
// SRT, whatever feeds the decoder) lives outside the core; this package
// only sees frames that are already pixels.
package ingest

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/stream"
)

// Adapter routes frames to sessions. Session handles are cached per stream
// so steady-state delivery never touches the supervisor registry lock.
// Delivery for one stream must be sequential; the transport layer owns
// that ordering (one connection per stream).
type Adapter struct {
	sup    *stream.Supervisor
	logger *zap.Logger

	handles sync.Map // streamID -> *stream.Session
}

// NewAdapter creates the ingestion adapter over the supervisor.
func NewAdapter(sup *stream.Supervisor, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{sup: sup, logger: logger}
}

// Deliver hands one decoded frame to its session. Unknown streams return
// ErrUnknownStream so the transport can tear the feed down; everything
// else (drops, reordering) is absorbed by the session.
func (a *Adapter) Deliver(frame *models.VideoFrame) error {
	sess, err := a.session(frame.StreamID)
	if err != nil {
		return err
	}
	sess.Enqueue(frame)
	return nil
}

// Fail reports a fatal transport error for a stream; the session is
// force-stopped and emits stream_failed.
func (a *Adapter) Fail(streamID string, err error) {
	a.handles.Delete(streamID)
	sess, lookupErr := a.sup.Lookup(streamID)
	if lookupErr != nil {
		return
	}
	a.logger.Error("fatal transport error", zap.String("stream_id", streamID), zap.Error(err))
	sess.Fail(stream.ReasonTransportError)
}

// Disconnect drops the cached handle when the transport closes normally.
func (a *Adapter) Disconnect(streamID string) {
	a.handles.Delete(streamID)
}

func (a *Adapter) session(streamID string) (*stream.Session, error) {
	if v, ok := a.handles.Load(streamID); ok {
		sess := v.(*stream.Session)
		if sess.Status().Live() {
			return sess, nil
		}
		a.handles.Delete(streamID)
	}
	sess, err := a.sup.Lookup(streamID)
	if err != nil {
		return nil, err
	}
	a.handles.Store(streamID, sess)
	return sess, nil
}
