package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubinapp/rubin/pkg/capture"
	"github.com/rubinapp/rubin/pkg/chat"
	"github.com/rubinapp/rubin/pkg/conversation"
	"github.com/rubinapp/rubin/pkg/events"
	"github.com/rubinapp/rubin/pkg/generation"
	"github.com/rubinapp/rubin/pkg/llm"
	"github.com/rubinapp/rubin/pkg/session"
)

const problemJSON = `{"problem_statement": "Thin chorus", "context": "DAW arrangement view", "suggested_responses": ["Double the vocals"], "reasoning": "More layers, more width."}`

const solutionJSON = `{"solution": {"code": "Try widening the chorus.", "problem_statement": "Thin chorus", "suggested_responses": [], "reasoning": "Width."}}`

const musicActionJSON = `{"solution": {"code": "Generating that for you.", "problem_statement": "Music request", "suggested_responses": [], "reasoning": "User asked for audio.", "action": "generate_music_from_text", "musicGenerationPrompt": "Blues, Sad", "durationSeconds": 10}}`

const continueActionJSON = `{"solution": {"code": "Continuing your idea.", "problem_statement": "Music request", "suggested_responses": [], "reasoning": "User wants more.", "action": "generate_music_request", "musicGenerationPrompt": "Blues, Sad", "durationSeconds": 6}}`

// fakeGenerator records calls and returns a scripted outcome.
type fakeGenerator struct {
	result *generation.Result
	err    error

	textPrompts []string
	audioInputs []string
	onStart     func()
}

func (f *fakeGenerator) StartTextConditioned(_ context.Context, operationID, prompt string, seconds int) (*generation.Result, error) {
	f.textPrompts = append(f.textPrompts, prompt)
	if f.onStart != nil {
		f.onStart()
	}
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.OperationID = operationID
	return &result, nil
}

func (f *fakeGenerator) StartAudioConditioned(_ context.Context, operationID, inputPath, prompt string, seconds int) (*generation.Result, error) {
	f.audioInputs = append(f.audioInputs, inputPath)
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.OperationID = operationID
	return &result, nil
}

func (f *fakeGenerator) Cancel(context.Context, string) (generation.CancelOutcome, error) {
	return generation.CancelNotActive, nil
}

type fixture struct {
	session      *session.Session
	client       *llm.MockClient
	generator    *fakeGenerator
	broker       *events.Broker
	orchestrator *Orchestrator
	eventCh      <-chan events.Event
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()
	store := conversation.NewStore()
	queues := capture.NewManager(2)
	sess := session.New(store, queues)
	client := &llm.MockClient{Responses: responses}
	generator := &fakeGenerator{
		result: &generation.Result{
			ArtifactURL: "/tmp/generated.wav",
			Features:    generation.Features{Tempo: "90", Key: "A minor"},
			DisplayName: "Blues Sad",
			Prompt:      "Blues, Sad",
		},
	}
	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	eventCh := broker.Subscribe()

	orchestrator := NewOrchestrator(sess, chat.NewController(client, nil), generator, broker, Options{})
	return &fixture{
		session:      sess,
		client:       client,
		generator:    generator,
		broker:       broker,
		orchestrator: orchestrator,
		eventCh:      eventCh,
	}
}

// drainTypes collects the types of all events published so far.
func (f *fixture) drainTypes() []events.Type {
	var seen []events.Type
	for {
		select {
		case ev := <-f.eventCh:
			seen = append(seen, ev.Type)
		default:
			return seen
		}
	}
}

func writeCapture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("bytes"), 0o644))
	return path
}

func TestProcessNoPendingWorkIsNoOp(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.orchestrator.Process(context.Background()))

	assert.Contains(t, f.drainTypes(), events.ProcessingNoOp)
	assert.Equal(t, 0, f.session.Store.Len())
}

func TestProcessPrimaryImageCapture(t *testing.T) {
	f := newFixture(t, problemJSON)
	path := writeCapture(t, "screen.png")
	require.NoError(t, f.session.Queues.EnqueuePrimary(path))

	require.NoError(t, f.orchestrator.Process(context.Background()))

	// extraction switched the view and recorded the problem
	assert.Equal(t, capture.ViewSolutions, f.session.View())
	require.NotNil(t, f.session.Problem())
	assert.Equal(t, "Thin chorus", f.session.Problem().ProblemStatement)

	// queues are consumed as a batch
	primary, extra := f.session.Queues.Len()
	assert.Equal(t, 0, primary)
	assert.Equal(t, 0, extra)

	// transcript holds the capture and the extracted reply
	items := f.session.Store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, conversation.ItemUserFile, items[0].Type)
	assert.Equal(t, path, items[0].FilePath)
	assert.Equal(t, conversation.ItemAssistantReply, items[1].Type)
	assert.Equal(t, "Thin chorus", items[1].Assistant.Reply.Solution.ProblemStatement)

	seen := f.drainTypes()
	assert.Contains(t, seen, events.ProcessingStarted)
	assert.Contains(t, seen, events.ProblemExtracted)
	assert.Contains(t, seen, events.QueueCleared)
	assert.NotContains(t, seen, events.ProcessingError)
}

func TestProcessPrimaryExtractionFailureStillClearsQueues(t *testing.T) {
	f := newFixture(t)
	f.client.Err = errors.New("model unavailable")
	path := writeCapture(t, "screen.png")
	require.NoError(t, f.session.Queues.EnqueuePrimary(path))

	err := f.orchestrator.Process(context.Background())
	require.Error(t, err)

	primary, extra := f.session.Queues.Len()
	assert.Equal(t, 0, primary)
	assert.Equal(t, 0, extra)
	assert.Equal(t, capture.ViewQueue, f.session.View())

	seen := f.drainTypes()
	assert.Contains(t, seen, events.ProcessingError)
	assert.Contains(t, seen, events.QueueCleared)

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, conversation.ItemSystemMessage, items[1].Type)
}

func TestProcessPrimaryAudioCaptureUsesAudioExtraction(t *testing.T) {
	f := newFixture(t, problemJSON)
	path := writeCapture(t, "riff.wav")
	require.NoError(t, f.session.Queues.EnqueuePrimary(path))

	require.NoError(t, f.orchestrator.Process(context.Background()))
	require.NotNil(t, f.session.Problem())
}

func TestProcessExtraCaptureInSolutionsView(t *testing.T) {
	f := newFixture(t, solutionJSON)
	f.session.SetView(capture.ViewSolutions)
	path := writeCapture(t, "extra.png")
	require.NoError(t, f.session.Queues.EnqueueExtra(path))

	require.NoError(t, f.orchestrator.Process(context.Background()))

	_, extra := f.session.Queues.Len()
	assert.Equal(t, 0, extra)

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, conversation.ItemUserFile, items[0].Type)
	assert.Equal(t, conversation.ItemAssistantReply, items[1].Type)
}

func TestProcessExtraCaptureIgnoredInQueueView(t *testing.T) {
	f := newFixture(t)
	path := writeCapture(t, "extra.png")
	require.NoError(t, f.session.Queues.EnqueueExtra(path))

	require.NoError(t, f.orchestrator.Process(context.Background()))

	assert.Contains(t, f.drainTypes(), events.ProcessingNoOp)
	_, extra := f.session.Queues.Len()
	assert.Equal(t, 1, extra)
}

func TestProcessUserTextAppendsTurn(t *testing.T) {
	f := newFixture(t, solutionJSON)

	require.NoError(t, f.orchestrator.ProcessUserText(context.Background(), "my chorus sounds thin"))

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "my chorus sounds thin", items[0].Text)
	assert.Equal(t, "Try widening the chorus.", items[1].Assistant.Reply.Solution.Code)
}

func TestProcessUserTextMalformedReplyIsDegradedNotDropped(t *testing.T) {
	f := newFixture(t, "I cannot answer in JSON today.")

	err := f.orchestrator.ProcessUserText(context.Background(), "hello")
	require.Error(t, err)

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, conversation.ItemAssistantReply, items[1].Type)
	assert.Equal(t, chat.KindRaw, items[1].Assistant.Reply.Kind)
	assert.Equal(t, "I cannot answer in JSON today.", items[1].Assistant.Reply.Raw)

	assert.Contains(t, f.drainTypes(), events.ProcessingError)
}

func TestProcessUserTextDispatchesMusicGeneration(t *testing.T) {
	f := newFixture(t, musicActionJSON)

	var loadingSeen bool
	f.generator.onStart = func() {
		items := f.session.Store.Items()
		last := items[len(items)-1]
		loadingSeen = last.Assistant != nil && last.Assistant.IsLoadingAudio
	}

	require.NoError(t, f.orchestrator.ProcessUserText(context.Background(), "make me a sad blues clip"))

	// placeholder was visible while the job ran
	assert.True(t, loadingSeen)
	assert.Equal(t, []string{"Blues, Sad"}, f.generator.textPrompts)

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	final := items[1]
	assert.Equal(t, conversation.ItemAssistantReply, final.Type)
	assert.False(t, final.Assistant.IsLoadingAudio)
	assert.Equal(t, "/tmp/generated.wav", final.Assistant.PlayableAudioPath)

	seen := f.drainTypes()
	assert.Contains(t, seen, events.AudioReady)
}

func TestMusicGenerationFailureLandsOnSameItem(t *testing.T) {
	f := newFixture(t, musicActionJSON)
	f.generator.err = errors.New("prediction rejected")

	err := f.orchestrator.ProcessUserText(context.Background(), "make me a clip")
	require.Error(t, err)

	items := f.session.Store.Items()
	require.Len(t, items, 2)
	final := items[1]
	assert.False(t, final.Assistant.IsLoadingAudio)
	assert.Empty(t, final.Assistant.PlayableAudioPath)
	assert.Contains(t, final.Assistant.MusicGenerationError, "prediction rejected")
}

func TestMusicGenerationCancellationIsNotAnError(t *testing.T) {
	f := newFixture(t, musicActionJSON)
	f.generator.err = context.Canceled

	require.NoError(t, f.orchestrator.ProcessUserText(context.Background(), "make me a clip"))

	final := f.session.Store.Items()[1]
	assert.True(t, final.Assistant.MusicGenerationCancelled)
	assert.Empty(t, final.Assistant.MusicGenerationError)
}

func TestContinuationUsesLatestTranscriptAudio(t *testing.T) {
	f := newFixture(t, continueActionJSON)
	require.NoError(t, f.session.Store.Append(conversation.NewUserFile("/tmp/idea.wav", "", "")))

	require.NoError(t, f.orchestrator.ProcessUserText(context.Background(), "keep it going"))

	assert.Equal(t, []string{"/tmp/idea.wav"}, f.generator.audioInputs)
}

func TestContinuationWithoutAudioFails(t *testing.T) {
	f := newFixture(t, continueActionJSON)

	err := f.orchestrator.ProcessUserText(context.Background(), "keep it going")
	require.Error(t, err)

	final := f.session.Store.Items()[1]
	assert.Contains(t, final.Assistant.MusicGenerationError, "no audio available")
}

func TestStartNewChatResetsEverything(t *testing.T) {
	f := newFixture(t, solutionJSON)
	require.NoError(t, f.session.Store.Append(conversation.NewUserText("old message")))
	require.NoError(t, f.session.Queues.EnqueuePrimary("stale.png"))
	f.session.SetView(capture.ViewSolutions)
	f.session.SetProblem(&chat.ProblemInfo{ProblemStatement: "old"})

	require.NoError(t, f.orchestrator.StartNewChat(context.Background()))

	assert.Equal(t, capture.ViewQueue, f.session.View())
	assert.Nil(t, f.session.Problem())
	primary, _ := f.session.Queues.Len()
	assert.Equal(t, 0, primary)

	items := f.session.Store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "New chat started. How can I help?", items[0].Assistant.Reply.Solution.Code)

	assert.Contains(t, f.drainTypes(), events.SessionReset)
}

func TestWelcomePostsGreeting(t *testing.T) {
	f := newFixture(t, solutionJSON)

	f.orchestrator.Welcome(context.Background())

	items := f.session.Store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, conversation.ItemAssistantReply, items[0].Type)
}
