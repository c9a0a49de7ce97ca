package stream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/ml"
	"github.com/pitchsight/backend/pkg/response"
)

func newTestRouter(sv *Supervisor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(sv, zap.NewNop())
	r := gin.New()
	r.POST("/streams", h.Start)
	r.GET("/streams", h.List)
	r.GET("/streams/:id", h.Get)
	r.DELETE("/streams/:id", h.Stop)
	r.GET("/stats", h.Stats)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerStartAndGet(t *testing.T) {
	sv := NewSupervisor(testStreamConfig(), &ml.Synthetic{}, nil, nil, zap.NewNop())
	defer sv.Shutdown()
	r := newTestRouter(sv)

	w := doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "match-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)

	w = doJSON(t, r, http.MethodGet, "/streams/match-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/streams/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerStartConflictAndCapacity(t *testing.T) {
	sv := NewSupervisor(testStreamConfig(), &ml.Synthetic{}, nil, nil, zap.NewNop())
	defer sv.Shutdown()
	r := newTestRouter(sv)

	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "a"}).Code)
	assert.Equal(t, http.StatusConflict, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "a"}).Code)

	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "b"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "c"}).Code)
}

func TestHandlerStopIsIdempotent(t *testing.T) {
	sv := NewSupervisor(testStreamConfig(), &ml.Synthetic{}, nil, nil, zap.NewNop())
	defer sv.Shutdown()
	r := newTestRouter(sv)

	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "a"}).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, r, http.MethodDelete, "/streams/a", nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, r, http.MethodDelete, "/streams/a", nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, r, http.MethodDelete, "/streams/never-existed", nil).Code)
}

func TestHandlerListAndStats(t *testing.T) {
	sv := NewSupervisor(testStreamConfig(), &ml.Synthetic{}, nil, nil, zap.NewNop())
	defer sv.Shutdown()
	r := newTestRouter(sv)

	require.Equal(t, http.StatusCreated, doJSON(t, r, http.MethodPost, "/streams", map[string]string{"stream_id": "a"}).Code)

	w := doJSON(t, r, http.MethodGet, "/streams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool              `json:"success"`
		Data    []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)

	w = doJSON(t, r, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
