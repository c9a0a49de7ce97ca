package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/pkg/queue"
)

// Exporter stages buffered frames to a local JSON-lines file and enqueues
// the upload job. Staging keeps the session worker free: the snapshot is
// taken through the session mailbox, everything after that is off the hot
// path.
type Exporter struct {
	repo     *Repository
	jobs     *queue.Queue
	stageDir string
	logger   *zap.Logger
}

// NewExporter creates a clip exporter. stageDir empty means os.TempDir().
func NewExporter(repo *Repository, jobs *queue.Queue, stageDir string, logger *zap.Logger) *Exporter {
	if stageDir == "" {
		stageDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{repo: repo, jobs: jobs, stageDir: stageDir, logger: logger}
}

// Export persists a pending clip row, dumps the frames, and enqueues the
// upload.
func (e *Exporter) Export(ctx context.Context, streamID string, frames []*models.VideoFrame) (*models.Clip, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames buffered for stream %s", streamID)
	}

	clip, err := e.repo.Create(ctx, streamID, len(frames),
		frames[0].Sequence, frames[len(frames)-1].Sequence)
	if err != nil {
		return nil, fmt.Errorf("create clip: %w", err)
	}

	localPath, err := e.stage(clip.ID, frames)
	if err != nil {
		_ = e.repo.MarkFailed(ctx, clip.ID)
		return nil, fmt.Errorf("stage clip: %w", err)
	}

	if err := e.jobs.EnqueueClipUpload(ctx, queue.ClipUploadPayload{
		ClipID:    clip.ID,
		StreamID:  streamID,
		LocalPath: localPath,
	}); err != nil {
		_ = e.repo.MarkFailed(ctx, clip.ID)
		return nil, fmt.Errorf("enqueue upload: %w", err)
	}

	e.logger.Info("clip export staged",
		zap.String("clip_id", clip.ID.String()),
		zap.String("stream_id", streamID),
		zap.Int("frames", len(frames)))
	return clip, nil
}

// stage writes one JSON object per frame to {stageDir}/{clip_id}.jsonl.
func (e *Exporter) stage(clipID uuid.UUID, frames []*models.VideoFrame) (string, error) {
	localPath := filepath.Join(e.stageDir, clipID.String()+".jsonl")
	f, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, frame := range frames {
		if err := enc.Encode(frame); err != nil {
			os.Remove(localPath)
			return "", err
		}
	}
	return localPath, nil
}
