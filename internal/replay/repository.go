// Package replay exports DVR excerpts from a stream's frame buffer: the
// server stages the buffered frames to disk and a background worker uploads
// them to S3.
package replay

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchsight/backend/internal/models"
)

// Repository handles clips persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clips repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending clip row.
func (r *Repository) Create(ctx context.Context, streamID string, frameCount int, firstSeq, lastSeq uint64) (*models.Clip, error) {
	const q = `INSERT INTO clips (id, stream_id, frame_count, first_seq, last_seq, status, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW())
		RETURNING id, stream_id, frame_count, first_seq, last_seq, status, created_at`
	var c models.Clip
	var first, last int64
	err := r.pool.QueryRow(ctx, q, streamID, frameCount, int64(firstSeq), int64(lastSeq), models.ClipStatusPending).
		Scan(&c.ID, &c.StreamID, &c.FrameCount, &first, &last, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.FirstSeq = uint64(first)
	c.LastSeq = uint64(last)
	return &c, nil
}

// GetByID returns one clip, nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Clip, error) {
	const q = `SELECT id, stream_id, frame_count, first_seq, last_seq, status,
		COALESCE(s3_key, ''), COALESCE(s3_url, ''), COALESCE(size_bytes, 0), created_at, uploaded_at
		FROM clips WHERE id = $1`
	var c models.Clip
	var first, last int64
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.StreamID, &c.FrameCount, &first, &last,
		&c.Status, &c.S3Key, &c.S3URL, &c.SizeBytes, &c.CreatedAt, &c.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.FirstSeq = uint64(first)
	c.LastSeq = uint64(last)
	return &c, nil
}

// ListByStream returns clips for a stream, newest first.
func (r *Repository) ListByStream(ctx context.Context, streamID string, limit int) ([]models.Clip, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, stream_id, frame_count, first_seq, last_seq, status,
		COALESCE(s3_key, ''), COALESCE(s3_url, ''), COALESCE(size_bytes, 0), created_at, uploaded_at
		FROM clips WHERE stream_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, streamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Clip
	for rows.Next() {
		var c models.Clip
		var first, last int64
		if err := rows.Scan(&c.ID, &c.StreamID, &c.FrameCount, &first, &last,
			&c.Status, &c.S3Key, &c.S3URL, &c.SizeBytes, &c.CreatedAt, &c.UploadedAt); err != nil {
			return nil, err
		}
		c.FirstSeq = uint64(first)
		c.LastSeq = uint64(last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkCompleted records the S3 result for an uploaded clip.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, s3Key, s3URL string, sizeBytes int64) error {
	const q = `UPDATE clips SET status = $1, s3_key = $2, s3_url = $3, size_bytes = $4, uploaded_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, models.ClipStatusCompleted, s3Key, s3URL, sizeBytes, id)
	return err
}

// MarkFailed records a terminal upload failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE clips SET status = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.ClipStatusFailed, id)
	return err
}
