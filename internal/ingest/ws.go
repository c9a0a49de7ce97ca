package ingest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
)

const (
	readLimit    = 8 << 20 // decoded frames are large
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // ingest edge is deployed behind the transport gateway
	},
}

// ServeWS handles GET /ingest?stream_id=: the development/test transport
// that feeds decoded frames to the adapter as JSON envelopes, one message
// per frame. One connection per stream keeps per-stream delivery
// sequential, which the adapter contract requires.
func ServeWS(adapter *Adapter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamID := c.Query("stream_id")
		if streamID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ingest upgrade failed", zap.Error(err))
			return
		}
		defer func() {
			adapter.Disconnect(streamID)
			_ = conn.Close()
		}()

		conn.SetReadLimit(readLimit)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		stopPing := make(chan struct{})
		defer close(stopPing)
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stopPing:
					return
				case <-ticker.C:
					_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		for {
			var env models.FrameEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					adapter.Fail(streamID, err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))

			if err := adapter.Deliver(env.Frame(streamID)); err != nil {
				// Session gone: close the feed rather than drop silently.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}
