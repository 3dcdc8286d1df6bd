package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.replicate.com/v1"

// DefaultModelVersion is the pinned MusicGen release the app targets.
const DefaultModelVersion = "b05b1dff1d8c6dc63d14b0cdb42135378dcb87f6373b0d3d341ede46e59e2b38"

// ReplicateClient talks to the Replicate predictions API.
type ReplicateClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewReplicateClient builds a client with a sane request timeout. The
// timeout covers single HTTP calls, not the whole prediction lifecycle.
func NewReplicateClient(token string) *ReplicateClient {
	return &ReplicateClient{
		token:   token,
		baseURL: defaultAPIBase,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type predictionBody struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func (b *predictionBody) toPrediction() *Prediction {
	p := &Prediction{ID: b.ID, Status: b.Status}
	if len(b.Output) > 0 {
		var single string
		if err := json.Unmarshal(b.Output, &single); err == nil {
			p.Output = single
		} else {
			var many []string
			if err := json.Unmarshal(b.Output, &many); err == nil && len(many) > 0 {
				p.Output = many[0]
			}
		}
	}
	if len(b.Error) > 0 && string(b.Error) != "null" {
		var msg string
		if err := json.Unmarshal(b.Error, &msg); err == nil {
			p.Error = msg
		} else {
			p.Error = string(b.Error)
		}
	}
	return p
}

func (c *ReplicateClient) do(ctx context.Context, method, url string, body interface{}) (*predictionBody, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call prediction service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read prediction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("prediction service returned %d: %s", resp.StatusCode, string(raw))
	}
	if len(raw) == 0 {
		return &predictionBody{}, nil
	}
	var parsed predictionBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	return &parsed, nil
}

// Create submits a new prediction and returns its initial state.
func (c *ReplicateClient) Create(ctx context.Context, version string, input PredictionInput) (*Prediction, error) {
	body := map[string]interface{}{
		"version": version,
		"input":   input,
	}
	parsed, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", body)
	if err != nil {
		return nil, err
	}
	return parsed.toPrediction(), nil
}

// Get fetches the current state of a prediction.
func (c *ReplicateClient) Get(ctx context.Context, id string) (*Prediction, error) {
	parsed, err := c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, err
	}
	return parsed.toPrediction(), nil
}

// Cancel requests cancellation of a running prediction and returns the
// state the endpoint reports. A prediction that already finished comes
// back with its terminal status rather than an error.
func (c *ReplicateClient) Cancel(ctx context.Context, id string) (*Prediction, error) {
	parsed, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions/"+id+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	return parsed.toPrediction(), nil
}
