package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubinapp/rubin/pkg/tags"
)

// fakePredictionClient is an in-memory PredictionClient with a scriptable
// status sequence.
type fakePredictionClient struct {
	mu       sync.Mutex
	statuses []string
	output   string
	errMsg   string

	created      []PredictionInput
	gets         int
	cancels      []string
	cancelStatus string
	createErr    error
}

func (f *fakePredictionClient) next() string {
	if len(f.statuses) == 0 {
		return PredictionSucceeded
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status
}

func (f *fakePredictionClient) current(id string) *Prediction {
	status := f.next()
	p := &Prediction{ID: id, Status: status}
	if status == PredictionSucceeded {
		p.Output = f.output
	}
	if status == PredictionFailed {
		p.Error = f.errMsg
	}
	return p
}

func (f *fakePredictionClient) Create(_ context.Context, _ string, input PredictionInput) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	return f.current("pred-1"), nil
}

func (f *fakePredictionClient) Get(_ context.Context, id string) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.current(id), nil
}

func (f *fakePredictionClient) Cancel(_ context.Context, id string) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	status := f.cancelStatus
	if status == "" {
		status = PredictionCanceled
	}
	p := &Prediction{ID: id, Status: status}
	if status == PredictionSucceeded {
		p.Output = f.output
	}
	return p, nil
}

type fixedProber struct {
	seconds float64
	err     error
}

func (p fixedProber) Duration(context.Context, string) (float64, error) {
	return p.seconds, p.err
}

type fakeFetcher struct {
	path string
	err  error
}

func (f fakeFetcher) Fetch(context.Context, string, string) (string, error) {
	return f.path, f.err
}

type fakeExtractor struct {
	features Features
	err      error
}

func (f fakeExtractor) Extract(context.Context, string) (Features, error) {
	if f.err != nil {
		return UnknownFeatures(), f.err
	}
	return f.features, nil
}

func testVocabulary(t *testing.T) *tags.Vocabulary {
	t.Helper()
	vocab, err := tags.ParseVocabulary(strings.NewReader(
		"main_genres,moods\nBlues,Sad\nJazz,Uplifting\n"))
	require.NoError(t, err)
	return vocab
}

func fastPolicy() PollPolicy {
	return PollPolicy{Interval: time.Millisecond}
}

func writeWav(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func TestTextConditionedFiltersPromptAndSucceeds(t *testing.T) {
	client := &fakePredictionClient{
		statuses: []string{"processing", "processing", PredictionSucceeded},
		output:   "https://example.com/out.wav",
	}
	c := NewCoordinator(client, Options{
		Vocabulary: testVocabulary(t),
		Policy:     fastPolicy(),
	})

	result, err := c.StartTextConditioned(context.Background(), "op-1", "Blues, Flying Saucers, Sad", 10)
	require.NoError(t, err)

	require.Len(t, client.created, 1)
	input := client.created[0]
	assert.Equal(t, "Blues, Sad", input.Prompt)
	assert.Equal(t, DefaultModelVariant, input.ModelVersion)
	assert.Equal(t, 10, input.DurationSeconds)
	assert.Equal(t, "wav", input.OutputFormat)
	assert.False(t, input.Continuation)

	assert.Equal(t, "https://example.com/out.wav", result.ArtifactURL)
	assert.Equal(t, "Blues, Sad", result.Prompt)
	assert.Equal(t, UnknownFeatures(), result.Features)
	assert.Equal(t, 0, c.ActiveCount())
}

func TestTextConditionedRejectsFullyFilteredPrompt(t *testing.T) {
	client := &fakePredictionClient{}
	c := NewCoordinator(client, Options{
		Vocabulary: testVocabulary(t),
		Policy:     fastPolicy(),
	})

	_, err := c.StartTextConditioned(context.Background(), "op-1", "Dubstep, Hyperpop", 10)
	require.Error(t, err)
	assert.Empty(t, client.created)
}

func TestAudioConditionedBuildsContinuationInput(t *testing.T) {
	inputPath := writeWav(t)
	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Prober: fixedProber{seconds: 10.0},
		Policy: fastPolicy(),
	})

	_, err := c.StartAudioConditioned(context.Background(), "op-1", inputPath, "warm blues", 4)
	require.NoError(t, err)

	require.Len(t, client.created, 1)
	input := client.created[0]
	assert.True(t, input.Continuation)
	assert.Equal(t, 14, input.DurationSeconds)
	assert.Equal(t, 0, input.ContinuationStart)
	assert.Equal(t, 2.0, input.ContinuationEnd)
	assert.Equal(t, "data:audio/wav;base64,UklGRg==", input.InputAudio)
}

func TestAudioConditionedCarriesFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.wav")
	content := []byte("RIFF....WAVEfmt data")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Prober: fixedProber{seconds: 3.0},
		Policy: fastPolicy(),
	})

	_, err := c.StartAudioConditioned(context.Background(), "op-1", path, "warm blues", 4)
	require.NoError(t, err)

	input := client.created[0]
	require.True(t, strings.HasPrefix(input.InputAudio, "data:audio/wav;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(input.InputAudio, "data:audio/wav;base64,"))
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
	assert.NotContains(t, input.InputAudio, path)
}

func TestAudioConditionedShortInputCapsContinuation(t *testing.T) {
	inputPath := writeWav(t)
	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Prober: fixedProber{seconds: 1.4},
		Policy: fastPolicy(),
	})

	_, err := c.StartAudioConditioned(context.Background(), "op-1", inputPath, "warm blues", 4)
	require.NoError(t, err)

	input := client.created[0]
	assert.Equal(t, 5, input.DurationSeconds)
	assert.Equal(t, 1.0, input.ContinuationEnd)
}

func TestAudioConditionedProbeFailureDegradesToPlaceholder(t *testing.T) {
	inputPath := writeWav(t)
	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Prober: fixedProber{err: errors.New("ffprobe missing")},
		Policy: fastPolicy(),
	})

	_, err := c.StartAudioConditioned(context.Background(), "op-1", inputPath, "warm blues", 4)
	require.NoError(t, err)

	input := client.created[0]
	assert.Equal(t, 6, input.DurationSeconds)
	assert.Equal(t, 2.0, input.ContinuationEnd)
}

func TestAudioConditionedMissingInputFile(t *testing.T) {
	client := &fakePredictionClient{}
	c := NewCoordinator(client, Options{
		Prober: fixedProber{seconds: 10},
		Policy: fastPolicy(),
	})

	_, err := c.StartAudioConditioned(context.Background(), "op-1", "/does/not/exist.wav", "blues", 4)
	require.Error(t, err)
	var readErr *InputAudioError
	assert.ErrorAs(t, err, &readErr)
	assert.Empty(t, client.created)
}

func TestRunReportsRemoteFailure(t *testing.T) {
	client := &fakePredictionClient{
		statuses: []string{"processing", PredictionFailed},
		errMsg:   "NSFW filter triggered",
	}
	c := NewCoordinator(client, Options{Policy: fastPolicy()})

	_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NSFW filter triggered")
	assert.Equal(t, 0, c.ActiveCount())
}

func TestRunMapsRemoteCancellation(t *testing.T) {
	client := &fakePredictionClient{
		statuses: []string{"processing", PredictionCanceled},
	}
	c := NewCoordinator(client, Options{Policy: fastPolicy()})

	_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	client := &fakePredictionClient{
		statuses: []string{"processing", "processing", "processing", "processing"},
	}
	client.statuses = append(client.statuses, "processing") // keep repeating
	c := NewCoordinator(client, Options{
		Policy: PollPolicy{Interval: time.Millisecond, MaxAttempts: 3},
	})

	_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 polls")
}

func TestPostProcessDegradesOnExtractionFailure(t *testing.T) {
	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Policy:    fastPolicy(),
		Fetcher:   fakeFetcher{path: "/tmp/local.wav"},
		Extractor: fakeExtractor{err: errors.New("librosa missing")},
	})

	result, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/local.wav", result.ArtifactURL)
	assert.Equal(t, UnknownFeatures(), result.Features)
}

func TestPostProcessAttachesFeatures(t *testing.T) {
	client := &fakePredictionClient{output: "https://example.com/out.wav"}
	c := NewCoordinator(client, Options{
		Policy:    fastPolicy(),
		Fetcher:   fakeFetcher{path: "/tmp/local.wav"},
		Extractor: fakeExtractor{features: Features{Tempo: "92", Key: "E minor"}},
	})

	result, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	require.NoError(t, err)
	assert.Equal(t, "92", result.Features.Tempo)
	assert.Equal(t, "E minor", result.Features.Key)
}

func TestCancelWithoutActiveJob(t *testing.T) {
	c := NewCoordinator(&fakePredictionClient{}, Options{Policy: fastPolicy()})

	outcome, err := c.Cancel(context.Background(), "never-started")
	require.NoError(t, err)
	assert.Equal(t, CancelNotActive, outcome)
}

// blockingClient holds jobs in a non-terminal state until released so
// cancellation can race deterministically.
type blockingClient struct {
	mu       sync.Mutex
	terminal bool
	canceled bool
	started  chan struct{}
}

func (b *blockingClient) Create(context.Context, string, PredictionInput) (*Prediction, error) {
	close(b.started)
	return &Prediction{ID: "pred-1", Status: "starting"}, nil
}

func (b *blockingClient) Get(_ context.Context, id string) (*Prediction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.canceled:
		return &Prediction{ID: id, Status: PredictionCanceled}, nil
	case b.terminal:
		return &Prediction{ID: id, Status: PredictionSucceeded, Output: "https://example.com/out.wav"}, nil
	}
	return &Prediction{ID: id, Status: "processing"}, nil
}

func (b *blockingClient) Cancel(_ context.Context, id string) (*Prediction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal {
		return &Prediction{ID: id, Status: PredictionSucceeded, Output: "https://example.com/out.wav"}, nil
	}
	b.canceled = true
	return &Prediction{ID: id, Status: PredictionCanceled}, nil
}

func TestCancelStopsRunningJob(t *testing.T) {
	client := &blockingClient{started: make(chan struct{})}
	c := NewCoordinator(client, Options{Policy: fastPolicy()})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
		errCh <- err
	}()

	<-client.started
	require.Eventually(t, func() bool {
		status, ok := c.Status("op-1")
		return ok && status == StatusPolling
	}, time.Second, time.Millisecond)

	outcome, err := c.Cancel(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, CancelDone, outcome)
	assert.Equal(t, 0, c.ActiveCount())

	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCancelAfterCompletionIsTooLate(t *testing.T) {
	client := &blockingClient{started: make(chan struct{})}
	c := NewCoordinator(client, Options{Policy: fastPolicy()})

	resultCh := make(chan error, 1)
	go func() {
		_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
		resultCh <- err
	}()

	<-client.started
	require.Eventually(t, func() bool { return c.ActiveCount() == 1 }, time.Second, time.Millisecond)

	// job finishes while the registry entry is still present
	client.mu.Lock()
	client.terminal = true
	client.mu.Unlock()

	outcome, err := c.Cancel(context.Background(), "op-1")
	require.NoError(t, err)
	if outcome != CancelTooLate {
		// the run loop may have already unregistered the finished job
		assert.Equal(t, CancelNotActive, outcome)
	}

	require.NoError(t, <-resultCh)
	assert.Equal(t, 0, c.ActiveCount())
}

// finishedClient keeps reporting a job as running while the remote side
// has already completed it, so a cancel request always lands after the
// fact.
type finishedClient struct {
	mu       sync.Mutex
	canceled bool
	started  chan struct{}
}

func (f *finishedClient) Create(context.Context, string, PredictionInput) (*Prediction, error) {
	close(f.started)
	return &Prediction{ID: "pred-1", Status: "starting"}, nil
}

func (f *finishedClient) Get(_ context.Context, id string) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.canceled {
		return &Prediction{ID: id, Status: PredictionSucceeded, Output: "https://example.com/out.wav"}, nil
	}
	return &Prediction{ID: id, Status: "processing"}, nil
}

func (f *finishedClient) Cancel(_ context.Context, id string) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = true
	return &Prediction{ID: id, Status: PredictionSucceeded, Output: "https://example.com/out.wav"}, nil
}

func TestCancelOfFinishedJobIsTooLate(t *testing.T) {
	client := &finishedClient{started: make(chan struct{})}
	c := NewCoordinator(client, Options{Policy: fastPolicy()})

	resultCh := make(chan error, 1)
	go func() {
		_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
		resultCh <- err
	}()

	<-client.started
	require.Eventually(t, func() bool { return c.ActiveCount() == 1 }, time.Second, time.Millisecond)

	outcome, err := c.Cancel(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, CancelTooLate, outcome)
	assert.Equal(t, 0, c.ActiveCount())

	require.NoError(t, <-resultCh)
}

func TestProgressCarriesJobStatus(t *testing.T) {
	client := &fakePredictionClient{
		statuses: []string{"processing", PredictionSucceeded},
		output:   "https://example.com/out.wav",
	}
	var statuses []JobStatus
	c := NewCoordinator(client, Options{
		Policy: fastPolicy(),
		OnProgress: func(_ string, status JobStatus, _ string) {
			statuses = append(statuses, status)
		},
	})

	_, err := c.StartTextConditioned(context.Background(), "op-1", "anything", 8)
	require.NoError(t, err)
	assert.Equal(t, []JobStatus{StatusRequested, StatusPolling, StatusSucceeded}, statuses)
}
