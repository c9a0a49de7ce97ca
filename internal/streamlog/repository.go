// Package streamlog persists stream session lifecycle audit rows. The
// control plane never reads these; live state stays in memory with the
// supervisor.
package streamlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
)

// Repository handles stream_sessions persistence.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a stream sessions repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// SessionStarted inserts the audit row for a newly admitted stream and
// returns its record ID.
func (r *Repository) SessionStarted(ctx context.Context, streamID string, at time.Time) (uuid.UUID, error) {
	const q = `INSERT INTO stream_sessions (id, stream_id, started_at, frame_count, dropped_frames)
		VALUES (gen_random_uuid(), $1, $2, 0, 0)
		RETURNING id`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, streamID, at).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SessionEnded finalizes the audit row when a session terminates. Errors
// are logged, not propagated: auditing must never stall session teardown.
func (r *Repository) SessionEnded(ctx context.Context, recordID uuid.UUID, finalStatus models.SessionStatus, reason string, frames, dropped uint64) {
	const q = `UPDATE stream_sessions
		SET ended_at = NOW(), final_status = $1, end_reason = $2, frame_count = $3, dropped_frames = $4
		WHERE id = $5`
	if _, err := r.pool.Exec(ctx, q, string(finalStatus), reason, int64(frames), int64(dropped), recordID); err != nil {
		r.logger.Warn("session audit update failed",
			zap.String("record_id", recordID.String()), zap.Error(err))
	}
}

// GetByStream returns past session records for a stream, newest first.
func (r *Repository) GetByStream(ctx context.Context, streamID string, limit int) ([]models.StreamSessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT id, stream_id, started_at, ended_at, COALESCE(end_reason, ''), frame_count, dropped_frames, COALESCE(final_status, '')
		FROM stream_sessions WHERE stream_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, streamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StreamSessionRecord
	for rows.Next() {
		var rec models.StreamSessionRecord
		var frames, dropped int64
		if err := rows.Scan(&rec.ID, &rec.StreamID, &rec.StartedAt, &rec.EndedAt, &rec.EndReason, &frames, &dropped, &rec.FinalStatus); err != nil {
			return nil, err
		}
		rec.FrameCount = uint64(frames)
		rec.DroppedFrames = uint64(dropped)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByID returns one session record, nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSessionRecord, error) {
	const q = `SELECT id, stream_id, started_at, ended_at, COALESCE(end_reason, ''), frame_count, dropped_frames, COALESCE(final_status, '')
		FROM stream_sessions WHERE id = $1`
	var rec models.StreamSessionRecord
	var frames, dropped int64
	err := r.pool.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.StreamID, &rec.StartedAt, &rec.EndedAt, &rec.EndReason, &frames, &dropped, &rec.FinalStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.FrameCount = uint64(frames)
	rec.DroppedFrames = uint64(dropped)
	return &rec, nil
}
