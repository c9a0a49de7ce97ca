// Package buffer provides the per-stream frame ring buffer used for
// pipeline lookback and DVR clip export.
package buffer

import (
	"github.com/pitchsight/backend/internal/models"
)

// DefaultCapacity is 10 seconds of video at 30fps.
const DefaultCapacity = 300

// Ring is a fixed-capacity circular buffer of decoded frames. When full,
// Push overwrites the oldest frame. Capacity never grows, which keeps the
// memory ceiling per stream at capacity x frame size.
//
// Ring is not safe for concurrent use. The owning session worker is the
// only goroutine that may touch it.
type Ring struct {
	frames  []*models.VideoFrame
	head    int // next write position
	size    int
	evicted uint64
}

// NewRing creates a ring with the given capacity, or DefaultCapacity when
// capacity is not positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{frames: make([]*models.VideoFrame, capacity)}
}

// Push stores a frame, evicting the oldest when full. O(1).
func (r *Ring) Push(f *models.VideoFrame) {
	if r.size == len(r.frames) {
		r.evicted++
	} else {
		r.size++
	}
	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
}

// LastN returns the most recent min(k, size) frames in chronological order.
// The returned slice is freshly allocated; callers may retain it.
func (r *Ring) LastN(k int) []*models.VideoFrame {
	if k > r.size {
		k = r.size
	}
	if k <= 0 {
		return nil
	}
	out := make([]*models.VideoFrame, k)
	start := r.head - k
	if start < 0 {
		start += len(r.frames)
	}
	for i := 0; i < k; i++ {
		out[i] = r.frames[(start+i)%len(r.frames)]
	}
	return out
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.frames) }

// Evicted returns how many frames have been overwritten since creation.
func (r *Ring) Evicted() uint64 { return r.evicted }

// Reset drops all frames and releases payload references for GC. The
// eviction counter is preserved.
func (r *Ring) Reset() {
	for i := range r.frames {
		r.frames[i] = nil
	}
	r.head = 0
	r.size = 0
}
