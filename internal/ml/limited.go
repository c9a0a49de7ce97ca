package ml

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/pitchsight/backend/internal/models"
)

// Limited bounds concurrent inference calls across all streams with a
// weighted semaphore, so many streams cannot oversubscribe the model server.
// Acquire respects the caller's context, so a stage timeout also bounds the
// time spent waiting for a slot.
type Limited struct {
	inner Inferencer
	sem   *semaphore.Weighted
}

// NewLimited wraps an Inferencer with a concurrency cap. maxConcurrent <= 0
// defaults to 4.
func NewLimited(inner Inferencer, maxConcurrent int64) *Limited {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Limited{inner: inner, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (l *Limited) DetectPlayers(ctx context.Context, frame *models.VideoFrame) ([]PlayerDetection, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.inner.DetectPlayers(ctx, frame)
}

func (l *Limited) DetectBall(ctx context.Context, frame *models.VideoFrame) (BallDetection, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return BallDetection{}, err
	}
	defer l.sem.Release(1)
	return l.inner.DetectBall(ctx, frame)
}
