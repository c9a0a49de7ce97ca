package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/pkg/queue"
	"github.com/pitchsight/backend/pkg/storage"
)

// Processor consumes clip upload jobs: read the staged frame dump, upload
// to S3, finalize the clip row, delete the staging file.
type Processor struct {
	repo   *Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewProcessor creates a clip upload processor.
func NewProcessor(repo *Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{repo: repo, s3: s3, queue: q, logger: logger}
}

// Process executes one clip upload job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeClipUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ClipUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	clip, err := p.repo.GetByID(ctx, payload.ClipID)
	if err != nil || clip == nil {
		return fmt.Errorf("clip not found: %s", payload.ClipID)
	}
	if clip.Status == models.ClipStatusCompleted {
		p.logger.Info("clip already uploaded", zap.String("clip_id", clip.ID.String()))
		return nil
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		return fmt.Errorf("open staged clip: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staged clip: %w", err)
	}

	key := storage.ClipKey(payload.StreamID, payload.ClipID.String())
	s3URL, err := p.s3.Upload(ctx, p.s3.ClipsBucket(), key, "application/x-ndjson", f, info.Size())
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.repo.MarkCompleted(ctx, payload.ClipID, key, s3URL, info.Size()); err != nil {
		return fmt.Errorf("update db: %w", err)
	}
	_ = os.Remove(payload.LocalPath)

	p.logger.Info("clip upload completed",
		zap.String("clip_id", payload.ClipID.String()),
		zap.String("s3_key", key),
		zap.Int64("size", info.Size()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("clip worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if job.Attempt >= queue.MaxRetries {
				var payload queue.ClipUploadPayload
				if json.Unmarshal(job.Payload, &payload) == nil {
					_ = p.repo.MarkFailed(ctx, payload.ClipID)
				}
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
