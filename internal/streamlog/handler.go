package streamlog

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/pkg/response"
)

// Handler exposes past session audit records over the control plane.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates the session history handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListByStream handles GET /streams/:id/sessions.
func (h *Handler) ListByStream(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.repo.GetByStream(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("list sessions", zap.String("stream_id", c.Param("id")), zap.Error(err))
		response.Internal(c, "list sessions failed")
		return
	}
	if records == nil {
		records = []models.StreamSessionRecord{}
	}
	response.OK(c, records)
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "get session failed")
		return
	}
	if rec == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, rec)
}
