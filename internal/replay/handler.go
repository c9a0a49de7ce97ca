package replay

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/internal/stream"
	"github.com/pitchsight/backend/pkg/response"
	"github.com/pitchsight/backend/pkg/storage"
)

// Handler exposes clip export over the control plane.
type Handler struct {
	sup      *stream.Supervisor
	exporter *Exporter
	repo     *Repository
	s3       *storage.S3
	logger   *zap.Logger
}

// NewHandler creates the clip handler. s3 may be nil; download URLs are
// then unavailable.
func NewHandler(sup *stream.Supervisor, exporter *Exporter, repo *Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sup: sup, exporter: exporter, repo: repo, s3: s3, logger: logger}
}

type exportRequest struct {
	Frames int `json:"frames"`
}

// Export handles POST /streams/:id/clips: snapshot the last N buffered
// frames and hand them to the background upload path.
func (h *Handler) Export(c *gin.Context) {
	streamID := c.Param("id")
	sess, err := h.sup.Lookup(streamID)
	if err != nil {
		response.NotFound(c, "stream not found")
		return
	}

	req := exportRequest{Frames: 150}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid export request: "+err.Error())
			return
		}
	}
	if req.Frames <= 0 {
		response.BadRequest(c, "frames must be positive")
		return
	}

	frames, err := sess.SnapshotFrames(c.Request.Context(), req.Frames)
	if err != nil {
		response.Conflict(c, "stream is shutting down")
		return
	}

	clip, err := h.exporter.Export(c.Request.Context(), streamID, frames)
	if err != nil {
		h.logger.Error("clip export", zap.String("stream_id", streamID), zap.Error(err))
		response.Internal(c, "clip export failed")
		return
	}
	response.Created(c, clip)
}

// ListByStream handles GET /streams/:id/clips.
func (h *Handler) ListByStream(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	clips, err := h.repo.ListByStream(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Internal(c, "list clips failed")
		return
	}
	if clips == nil {
		clips = []models.Clip{}
	}
	response.OK(c, clips)
}

// Get handles GET /clips/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "get clip failed")
		return
	}
	if clip == nil {
		response.NotFound(c, "clip not found")
		return
	}
	response.OK(c, clip)
}

// DownloadURL handles GET /clips/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "clip storage not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil || clip == nil {
		response.NotFound(c, "clip not found")
		return
	}
	if clip.Status != models.ClipStatusCompleted {
		response.Conflict(c, "clip not uploaded yet")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.ClipsBucket(), clip.S3Key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign clip", zap.String("clip_id", clip.ID.String()), zap.Error(err))
		response.Internal(c, "presign failed")
		return
	}
	response.OK(c, gin.H{"url": url})
}
