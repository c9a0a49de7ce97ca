package stream

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
	"github.com/pitchsight/backend/pkg/response"
)

// Handler exposes the supervisor over the control-plane REST API.
type Handler struct {
	sup    *Supervisor
	logger *zap.Logger
}

// NewHandler creates the stream control-plane handler.
func NewHandler(sup *Supervisor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sup: sup, logger: logger}
}

// Start handles POST /streams.
func (h *Handler) Start(c *gin.Context) {
	var cfg models.StreamConfig
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			response.BadRequest(c, "invalid stream config: "+err.Error())
			return
		}
	}

	sess, err := h.sup.StartStream(c.Request.Context(), cfg)
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		response.ServiceUnavailable(c, err.Error())
		return
	case errors.Is(err, ErrStreamExists):
		response.Conflict(c, err.Error())
		return
	case err != nil:
		h.logger.Error("start stream", zap.Error(err))
		response.Internal(c, "failed to start stream")
		return
	}
	response.Created(c, sess.Metrics(c.Request.Context()))
}

// List handles GET /streams.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.sup.ListActive(c.Request.Context()))
}

// Get handles GET /streams/:id.
func (h *Handler) Get(c *gin.Context) {
	m, err := h.sup.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.NotFound(c, "stream not found")
		return
	}
	response.OK(c, m)
}

// Stop handles DELETE /streams/:id. Idempotent: unknown IDs still return 204.
func (h *Handler) Stop(c *gin.Context) {
	h.sup.StopStream(c.Param("id"))
	response.NoContent(c)
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	response.OK(c, h.sup.Stats(c.Request.Context()))
}
