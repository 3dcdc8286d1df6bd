// Package generation coordinates remote music generation jobs: submitting
// predictions, polling them to completion, cancellation bookkeeping and
// post-processing of finished artifacts.
package generation

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rubinapp/rubin/pkg/logging"
	"github.com/rubinapp/rubin/pkg/tags"
)

// DefaultModelVariant is the MusicGen variant requested in every payload.
const DefaultModelVariant = "stereo-melody-large"

// maxContinuationSeconds caps how much of the input audio conditions a
// continuation.
const maxContinuationSeconds = 2.0

// fallbackInputSeconds stands in for the input length when probing is
// unavailable. Probe failure degrades, it never fails the job.
const fallbackInputSeconds = 2.0

// PollPolicy controls the completion-polling loop. A zero MaxAttempts
// polls until the job is terminal or the context is done.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy mirrors the cadence the remote service expects.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 2500 * time.Millisecond}
}

// CancelOutcome describes what a cancel request achieved.
type CancelOutcome string

const (
	// CancelNotActive means no job was registered under the operation ID.
	CancelNotActive CancelOutcome = "not_active"
	// CancelTooLate means the job already reached a terminal status.
	CancelTooLate CancelOutcome = "too_late"
	// CancelDone means the remote job was canceled.
	CancelDone CancelOutcome = "canceled"
)

// ProgressFunc receives coarse status updates during a job.
type ProgressFunc func(operationID string, status JobStatus, message string)

// InputAudioError reports that the audio conditioning a continuation job
// could not be read from disk.
type InputAudioError struct {
	Path string
	Err  error
}

func (e *InputAudioError) Error() string {
	return fmt.Sprintf("read input audio %s: %v", e.Path, e.Err)
}

func (e *InputAudioError) Unwrap() error { return e.Err }

// jobRecord tracks one in-flight operation: the remote prediction backing
// it and where it is in its lifecycle.
type jobRecord struct {
	predictionID string
	status       JobStatus
}

// Coordinator owns the lifecycle of generation jobs. It keeps a registry
// of in-flight operations so cancellation can address them by the caller's
// operation ID rather than the remote prediction ID.
type Coordinator struct {
	client    PredictionClient
	vocab     *tags.Vocabulary
	prober    DurationProber
	extractor FeatureExtractor
	fetcher   ArtifactFetcher
	logger    logging.Logger

	version    string
	outputDir  string
	policy     PollPolicy
	onProgress ProgressFunc

	mu     sync.Mutex
	active map[string]*jobRecord
}

// Options configures a Coordinator. Zero values fall back to defaults;
// Prober, Extractor and Fetcher may be nil when the corresponding
// post-processing step should be skipped.
type Options struct {
	Vocabulary *tags.Vocabulary
	Prober     DurationProber
	Extractor  FeatureExtractor
	Fetcher    ArtifactFetcher
	Logger     logging.Logger
	Version    string
	OutputDir  string
	Policy     PollPolicy
	OnProgress ProgressFunc
}

// NewCoordinator builds a coordinator over the given prediction client.
func NewCoordinator(client PredictionClient, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	policy := opts.Policy
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollPolicy().Interval
	}
	version := opts.Version
	if version == "" {
		version = DefaultModelVersion
	}
	return &Coordinator{
		client:     client,
		vocab:      opts.Vocabulary,
		prober:     opts.Prober,
		extractor:  opts.Extractor,
		fetcher:    opts.Fetcher,
		logger:     logger,
		version:    version,
		outputDir:  opts.OutputDir,
		policy:     policy,
		onProgress: opts.OnProgress,
	}
}

// ActiveCount reports how many operations are currently registered.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func (c *Coordinator) register(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		c.active = make(map[string]*jobRecord)
	}
	c.active[operationID] = &jobRecord{status: StatusRequested}
}

func (c *Coordinator) unregister(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, operationID)
}

func (c *Coordinator) submitted(operationID, predictionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.active[operationID]; ok {
		rec.predictionID = predictionID
		rec.status = StatusSubmitted
	}
}

func (c *Coordinator) setStatus(operationID string, status JobStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.active[operationID]; ok {
		rec.status = status
	}
}

func (c *Coordinator) lookup(operationID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[operationID]
	if !ok {
		return "", false
	}
	return rec.predictionID, true
}

// Status reports the lifecycle state of a registered operation.
func (c *Coordinator) Status(operationID string) (JobStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.active[operationID]
	if !ok {
		return "", false
	}
	return rec.status, true
}

func (c *Coordinator) progress(operationID string, status JobStatus, message string) {
	if c.onProgress != nil {
		c.onProgress(operationID, status, message)
	}
}

// filterPrompt applies the approved vocabulary when one is configured.
func (c *Coordinator) filterPrompt(prompt string) (string, error) {
	if c.vocab == nil {
		return prompt, nil
	}
	filtered, dropped := c.vocab.FilterPrompt(prompt)
	if len(dropped) > 0 {
		c.logger.Warn("dropped unapproved tags from prompt", "dropped", strings.Join(dropped, ", "))
	}
	if filtered == "" {
		return "", fmt.Errorf("no approved tags remain in prompt %q", prompt)
	}
	return filtered, nil
}

// StartTextConditioned submits a text-only generation job and runs it to
// completion.
func (c *Coordinator) StartTextConditioned(ctx context.Context, operationID, prompt string, seconds int) (*Result, error) {
	filtered, err := c.filterPrompt(prompt)
	if err != nil {
		return nil, err
	}
	input := PredictionInput{
		ModelVersion:    DefaultModelVariant,
		Prompt:          filtered,
		DurationSeconds: seconds,
		OutputFormat:    "wav",
	}
	return c.run(ctx, operationID, input)
}

// StartAudioConditioned submits a continuation job: the model extends the
// audio at inputPath by extraSeconds of new material. The requested total
// duration covers the input plus the new segment.
func (c *Coordinator) StartAudioConditioned(ctx context.Context, operationID, inputPath, prompt string, extraSeconds int) (*Result, error) {
	audio, err := encodeAudioInput(inputPath)
	if err != nil {
		return nil, err
	}
	filtered, err := c.filterPrompt(prompt)
	if err != nil {
		return nil, err
	}
	probed := fallbackInputSeconds
	if c.prober != nil {
		measured, probeErr := c.prober.Duration(ctx, inputPath)
		if probeErr != nil {
			c.logger.Warn("duration probe unavailable, using placeholder", "path", inputPath, "error", probeErr)
		} else {
			probed = measured
		}
	}

	total := int(math.Round(probed + float64(extraSeconds)))
	continuationEnd := math.Round(math.Min(probed, maxContinuationSeconds))

	input := PredictionInput{
		ModelVersion:      DefaultModelVariant,
		Prompt:            filtered,
		DurationSeconds:   total,
		OutputFormat:      "wav",
		Continuation:      true,
		ContinuationStart: 0,
		ContinuationEnd:   continuationEnd,
		InputAudio:        audio,
	}
	return c.run(ctx, operationID, input)
}

// encodeAudioInput reads the conditioning audio and packs its content into
// a data URI. The remote service never sees the local filesystem, so the
// payload has to carry the bytes themselves.
func encodeAudioInput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &InputAudioError{Path: path, Err: err}
	}
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// run submits, registers, polls and post-processes a job. The registry
// entry is removed on every exit path.
func (c *Coordinator) run(ctx context.Context, operationID string, input PredictionInput) (*Result, error) {
	c.register(operationID)
	defer c.unregister(operationID)
	c.progress(operationID, StatusRequested, "submitting generation request")

	prediction, err := c.client.Create(ctx, c.version, input)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	c.submitted(operationID, prediction.ID)

	c.logger.Info("generation job submitted",
		"operation", operationID,
		"prediction", prediction.ID,
		"duration", input.DurationSeconds)
	c.setStatus(operationID, StatusPolling)
	c.progress(operationID, StatusPolling, "generating audio")

	final, err := c.poll(ctx, prediction)
	if err != nil {
		c.setStatus(operationID, StatusFailed)
		return nil, err
	}
	c.setStatus(operationID, jobStatusFor(final.Status))
	switch final.Status {
	case PredictionCanceled:
		return nil, context.Canceled
	case PredictionFailed:
		return nil, fmt.Errorf("generation failed: %s", final.Error)
	}
	if final.Output == "" {
		return nil, fmt.Errorf("generation succeeded without output")
	}

	result := &Result{
		OperationID: operationID,
		ArtifactURL: final.Output,
		Features:    UnknownFeatures(),
		DisplayName: displayName(input.Prompt),
		Prompt:      input.Prompt,
	}
	c.postProcess(ctx, operationID, result)
	c.progress(operationID, StatusSucceeded, "generation complete")
	return result, nil
}

// postProcess downloads the artifact and extracts musical features.
// Both steps are best-effort and never fail the job.
func (c *Coordinator) postProcess(ctx context.Context, operationID string, result *Result) {
	if c.fetcher == nil {
		return
	}
	c.progress(operationID, StatusSucceeded, "downloading audio")
	localPath, err := c.fetcher.Fetch(ctx, result.ArtifactURL, c.outputDir)
	if err != nil {
		c.logger.Warn("artifact download failed", "operation", operationID, "error", err)
		return
	}
	result.ArtifactURL = localPath

	if c.extractor == nil {
		return
	}
	c.progress(operationID, StatusSucceeded, "analyzing audio")
	features, err := c.extractor.Extract(ctx, localPath)
	if err != nil {
		c.logger.Warn("feature extraction failed", "operation", operationID, "error", err)
		return
	}
	result.Features = features
}

func (c *Coordinator) poll(ctx context.Context, prediction *Prediction) (*Prediction, error) {
	if prediction.Terminal() {
		return prediction, nil
	}
	ticker := time.NewTicker(c.policy.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		current, err := c.client.Get(ctx, prediction.ID)
		if err != nil {
			return nil, fmt.Errorf("poll prediction %s: %w", prediction.ID, err)
		}
		if current.Terminal() {
			return current, nil
		}
		attempts++
		if c.policy.MaxAttempts > 0 && attempts >= c.policy.MaxAttempts {
			return nil, fmt.Errorf("prediction %s still %s after %d polls", prediction.ID, current.Status, attempts)
		}
	}
}

// Cancel asks the remote service to stop the job registered under
// operationID. The outcome keys off the status the cancel endpoint reports
// back: a job that finished before the request landed is too late, not
// canceled.
func (c *Coordinator) Cancel(ctx context.Context, operationID string) (CancelOutcome, error) {
	predictionID, ok := c.lookup(operationID)
	if !ok || predictionID == "" {
		return CancelNotActive, nil
	}
	final, err := c.client.Cancel(ctx, predictionID)
	if err != nil {
		return CancelNotActive, fmt.Errorf("cancel prediction %s: %w", predictionID, err)
	}
	status := jobStatusFor(final.Status)
	if status.Terminal() {
		c.unregister(operationID)
		if status != StatusCanceled {
			return CancelTooLate, nil
		}
	}
	c.logger.Info("generation job canceled", "operation", operationID, "prediction", predictionID)
	return CancelDone, nil
}

// jobStatusFor maps a remote prediction status onto the job lifecycle.
func jobStatusFor(predictionStatus string) JobStatus {
	switch predictionStatus {
	case PredictionSucceeded:
		return StatusSucceeded
	case PredictionFailed:
		return StatusFailed
	case PredictionCanceled:
		return StatusCanceled
	}
	return StatusPolling
}

// displayName derives a short human-readable title from the prompt.
func displayName(prompt string) string {
	cleaned := strings.TrimSpace(prompt)
	if cleaned == "" {
		return "Generated Audio"
	}
	words := strings.Fields(cleaned)
	if len(words) > 6 {
		words = words[:6]
	}
	name := strings.Join(words, " ")
	name = strings.Trim(name, ",.;:")
	if name == "" {
		return "Generated Audio"
	}
	return name
}
