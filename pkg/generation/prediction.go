package generation

import "context"

// Prediction statuses reported by the remote service.
const (
	PredictionSucceeded = "succeeded"
	PredictionFailed    = "failed"
	PredictionCanceled  = "canceled"
)

// PredictionInput is the model-facing payload for a generation request.
// Continuation fields are only set for audio-conditioned jobs.
type PredictionInput struct {
	ModelVersion      string  `json:"model_version"`
	Prompt            string  `json:"prompt"`
	DurationSeconds   int     `json:"duration"`
	OutputFormat      string  `json:"output_format"`
	Continuation      bool    `json:"continuation,omitempty"`
	ContinuationStart int     `json:"continuation_start"`
	ContinuationEnd   float64 `json:"continuation_end,omitempty"`
	InputAudio        string  `json:"input_audio,omitempty"`
}

// Prediction is the remote job state returned by the service.
type Prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Terminal reports whether the prediction has reached a final status.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case PredictionSucceeded, PredictionFailed, PredictionCanceled:
		return true
	}
	return false
}

// PredictionClient abstracts the remote generation service so the
// coordinator can be exercised without network access. Cancel returns the
// prediction state the cancel endpoint reports; callers key on its status
// to tell an actual cancellation from a job that had already finished.
type PredictionClient interface {
	Create(ctx context.Context, version string, input PredictionInput) (*Prediction, error)
	Get(ctx context.Context, id string) (*Prediction, error)
	Cancel(ctx context.Context, id string) (*Prediction, error)
}
