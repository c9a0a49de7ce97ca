// Package ml provides access to the black-box inference capability backing
// the detection stages. Models run out of process; this package only knows
// their request/response contract and bounds how many calls may be in
// flight at once.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitchsight/backend/internal/models"
)

// PlayerDetection is one detected player box projected onto the pitch plane.
type PlayerDetection struct {
	Position   models.Point `json:"position"`
	Confidence float64      `json:"confidence"`
	JerseyHue  float64      `json:"jersey_hue"`
}

// BallDetection is the ball detection for one frame. Confidence 0 means the
// ball was not found (occlusion, out of frame).
type BallDetection struct {
	Position   models.Point `json:"position"`
	Confidence float64      `json:"confidence"`
}

// Inferencer is the model-server contract used by the detection stages.
type Inferencer interface {
	DetectPlayers(ctx context.Context, frame *models.VideoFrame) ([]PlayerDetection, error)
	DetectBall(ctx context.Context, frame *models.VideoFrame) (BallDetection, error)
}

// HTTPClient calls an external inference server over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates an inference client for the given server base URL.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type inferRequest struct {
	StreamID string `json:"stream_id"`
	Sequence uint64 `json:"sequence"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Payload  []byte `json:"payload,omitempty"`
}

// DetectPlayers calls POST {base}/v1/detect/players.
func (c *HTTPClient) DetectPlayers(ctx context.Context, frame *models.VideoFrame) ([]PlayerDetection, error) {
	var out struct {
		Players []PlayerDetection `json:"players"`
	}
	if err := c.post(ctx, "/v1/detect/players", frame, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

// DetectBall calls POST {base}/v1/detect/ball.
func (c *HTTPClient) DetectBall(ctx context.Context, frame *models.VideoFrame) (BallDetection, error) {
	var out struct {
		Ball BallDetection `json:"ball"`
	}
	if err := c.post(ctx, "/v1/detect/ball", frame, &out); err != nil {
		return BallDetection{}, err
	}
	return out.Ball, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, frame *models.VideoFrame, out interface{}) error {
	body, err := json.Marshal(inferRequest{
		StreamID: frame.StreamID,
		Sequence: frame.Sequence,
		Width:    frame.Width,
		Height:   frame.Height,
		Payload:  frame.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
