package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MockSimilarity is returned by a RemoteEngine running in skip mode.
const MockSimilarity = 0.92

// RemoteEngine calls the face recognition microservice's /compare endpoint.
type RemoteEngine struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// NewRemoteEngine creates a client. With skip set every comparison returns MockSimilarity.
func NewRemoteEngine(baseURL string, skip bool, timeout time.Duration) *RemoteEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEngine{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type compareRequest struct {
	Image1 string `json:"image_1"`
	Image2 string `json:"image_2"`
}

type compareResponse struct {
	Similarity    float64 `json:"similarity"`
	FacesDetected *int    `json:"faces_detected,omitempty"`
}

// Similarity implements Engine.
func (c *RemoteEngine) Similarity(ctx context.Context, probe, template []byte) (float64, error) {
	if c.Skip {
		return MockSimilarity, nil
	}
	if len(probe) == 0 {
		return 0, ErrUndecodable
	}
	if len(template) == 0 {
		return 0, ErrBadTemplate
	}

	body, err := json.Marshal(compareRequest{
		Image1: base64.StdEncoding.EncodeToString(probe),
		Image2: base64.StdEncoding.EncodeToString(template),
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/compare", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return 0, fmt.Errorf("%w: rejected by face service", ErrUndecodable)
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.FacesDetected != nil && *out.FacesDetected == 0 {
		return 0, nil
	}
	return clamp01(out.Similarity), nil
}

// Health checks if the face service is available.
func (c *RemoteEngine) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
