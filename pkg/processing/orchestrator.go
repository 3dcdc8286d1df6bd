// Package processing ties the session, chat controller, capture queues and
// generation coordinator together behind the command surface.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rubinapp/rubin/pkg/capture"
	"github.com/rubinapp/rubin/pkg/chat"
	"github.com/rubinapp/rubin/pkg/conversation"
	"github.com/rubinapp/rubin/pkg/events"
	"github.com/rubinapp/rubin/pkg/generation"
	"github.com/rubinapp/rubin/pkg/logging"
	"github.com/rubinapp/rubin/pkg/session"
)

// accompanying texts for capture-driven chat turns.
const (
	primaryCaptureText = "Analyze this screenshot in our current conversation context:"
	extraCaptureText   = "Regarding our conversation, also consider this extra screenshot:"
)

// MusicGenerator is the slice of the generation coordinator the
// orchestrator depends on.
type MusicGenerator interface {
	StartTextConditioned(ctx context.Context, operationID, prompt string, seconds int) (*generation.Result, error)
	StartAudioConditioned(ctx context.Context, operationID, inputPath, prompt string, extraSeconds int) (*generation.Result, error)
	Cancel(ctx context.Context, operationID string) (generation.CancelOutcome, error)
}

// Options configures an Orchestrator.
type Options struct {
	// SerializeTurns forces at most one in-flight turn. Off by default:
	// overlapping turns are tolerated and the store keeps items consistent.
	SerializeTurns bool

	// DefaultGenerationSeconds is used when the model omits a duration.
	DefaultGenerationSeconds int

	Logger logging.Logger
}

// Orchestrator implements the app's operations on top of the session
// state. It owns the decision procedure for capture processing and the
// placeholder protocol for long-running music jobs.
type Orchestrator struct {
	session    *session.Session
	controller *chat.Controller
	generator  MusicGenerator
	broker     *events.Broker
	logger     logging.Logger

	serializeTurns bool
	defaultSeconds int

	turnMu sync.Mutex

	cancelMu   sync.Mutex
	turnCancel context.CancelFunc
}

// NewOrchestrator wires an orchestrator and bridges store mutations onto
// the event broker.
func NewOrchestrator(sess *session.Session, controller *chat.Controller, generator MusicGenerator, broker *events.Broker, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	seconds := opts.DefaultGenerationSeconds
	if seconds <= 0 {
		seconds = 8
	}
	o := &Orchestrator{
		session:        sess,
		controller:     controller,
		generator:      generator,
		broker:         broker,
		logger:         logger,
		serializeTurns: opts.SerializeTurns,
		defaultSeconds: seconds,
	}
	sess.Store.Subscribe(func(item *conversation.Item) {
		if item == nil {
			return
		}
		broker.Publish(events.ConversationUpdated, *item)
	})
	return o
}

// beginTurn installs a cancelable context for the turn and, when
// configured, serializes it against other turns. The returned release must
// be called when the turn ends.
func (o *Orchestrator) beginTurn(ctx context.Context) (context.Context, func()) {
	if o.serializeTurns {
		o.turnMu.Lock()
	}
	turnCtx, cancel := context.WithCancel(ctx)
	o.cancelMu.Lock()
	o.turnCancel = cancel
	o.cancelMu.Unlock()

	return turnCtx, func() {
		cancel()
		o.cancelMu.Lock()
		if o.turnCancel != nil {
			o.turnCancel = nil
		}
		o.cancelMu.Unlock()
		if o.serializeTurns {
			o.turnMu.Unlock()
		}
	}
}

// CancelTurn aborts the in-flight turn, if any.
func (o *Orchestrator) CancelTurn() {
	o.cancelMu.Lock()
	cancel := o.turnCancel
	o.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Process runs one pass of the capture decision procedure: a pending
// primary capture wins and becomes the extracted problem; otherwise, in the
// solutions view, a pending extra capture is attached to the conversation;
// otherwise the pass is a no-op.
func (o *Orchestrator) Process(ctx context.Context) error {
	ctx, done := o.beginTurn(ctx)
	defer done()

	if path := o.session.Queues.TakeLatest(capture.Primary); path != "" {
		o.broker.Publish(events.ProcessingStarted, nil)
		return o.processPrimary(ctx, path)
	}
	if o.session.View() == capture.ViewSolutions {
		if path := o.session.Queues.TakeLatest(capture.Extra); path != "" {
			o.broker.Publish(events.ProcessingStarted, nil)
			return o.processExtra(ctx, path)
		}
	}
	o.broker.Publish(events.ProcessingNoOp, nil)
	return nil
}

// processPrimary extracts a structured problem from the newest primary
// capture. The queues are cleared afterwards whether extraction worked or
// not: stale captures must never leak into the next pass.
func (o *Orchestrator) processPrimary(ctx context.Context, path string) error {
	defer func() {
		o.session.Queues.ClearAll()
		o.broker.Publish(events.QueueCleared, nil)
	}()

	o.session.Store.Append(conversation.NewUserFile(path, "", ""))

	var info *chat.ProblemInfo
	var err error
	if chat.IsAudioPath(path) {
		info, err = o.controller.ExtractProblemFromAudio(ctx, path)
	} else {
		info, err = o.controller.ExtractProblemFromImage(ctx, path)
	}
	if err != nil {
		o.logger.Error("problem extraction failed", "path", path, "error", err)
		o.broker.Publish(events.ProcessingError, err.Error())
		o.session.Store.Append(conversation.NewSystemMessage(fmt.Sprintf("Could not analyze the capture: %v", err)))
		return err
	}

	o.session.SetProblem(info)
	o.session.SetView(capture.ViewSolutions)
	o.broker.Publish(events.ProblemExtracted, *info)

	o.session.Store.Append(conversation.NewAssistantReply(conversation.AssistantContent{
		Reply: &chat.Reply{
			Kind: chat.KindSolution,
			Solution: &chat.Solution{
				ProblemStatement:   info.ProblemStatement,
				Context:            info.Context,
				SuggestedResponses: info.SuggestedResponses,
				Reasoning:          info.Reasoning,
			},
		},
	}))
	return nil
}

// processExtra attaches the newest extra capture to the running chat. As
// with the primary pass, the queues are cleared whatever the outcome.
func (o *Orchestrator) processExtra(ctx context.Context, path string) error {
	defer func() {
		o.session.Queues.ClearAll()
		o.broker.Publish(events.QueueCleared, nil)
	}()

	o.session.Store.Append(conversation.NewUserFile(path, "", extraCaptureText))

	reply, err := o.controller.SendUserTurn(ctx, []chat.TurnPart{
		{Text: extraCaptureText},
		{FilePath: path},
	})
	if err != nil {
		o.logger.Error("extra capture turn failed", "path", path, "error", err)
		return o.handleTurnError(err)
	}
	return o.handleReply(ctx, reply)
}

// handleTurnError publishes a processing error. A malformed response is
// additionally surfaced as a degraded assistant item carrying the raw text,
// so the turn is visible rather than silently dropped.
func (o *Orchestrator) handleTurnError(err error) error {
	var malformed *chat.MalformedResponseError
	if errors.As(err, &malformed) {
		o.session.Store.Append(conversation.NewAssistantReply(conversation.AssistantContent{
			Reply: &chat.Reply{Kind: chat.KindRaw, Raw: malformed.Raw},
		}))
	}
	o.broker.Publish(events.ProcessingError, err.Error())
	return err
}

// ProcessUserText appends the user's message and runs a chat turn.
func (o *Orchestrator) ProcessUserText(ctx context.Context, text string) error {
	ctx, done := o.beginTurn(ctx)
	defer done()

	o.session.Store.Append(conversation.NewUserText(text))
	reply, err := o.controller.SendUserTurn(ctx, []chat.TurnPart{{Text: text}})
	if err != nil {
		return o.handleTurnError(err)
	}
	return o.handleReply(ctx, reply)
}

// ProcessUserFile appends a user-attached file and runs a chat turn with
// the capture and its accompanying text.
func (o *Orchestrator) ProcessUserFile(ctx context.Context, path, accompanying string) error {
	ctx, done := o.beginTurn(ctx)
	defer done()

	if accompanying == "" {
		accompanying = primaryCaptureText
	}
	o.session.Store.Append(conversation.NewUserFile(path, "", accompanying))
	reply, err := o.controller.SendUserTurn(ctx, []chat.TurnPart{
		{Text: accompanying},
		{FilePath: path},
	})
	if err != nil {
		return o.handleTurnError(err)
	}
	return o.handleReply(ctx, reply)
}

// handleReply stores an assistant reply, dispatching music generation when
// the model asked for it.
func (o *Orchestrator) handleReply(ctx context.Context, reply *chat.Reply) error {
	if reply.Kind == chat.KindSolution && reply.Solution != nil && reply.Solution.MusicGenerationPrompt != "" {
		switch reply.Solution.Action {
		case chat.ActionGenerateMusicFromText, chat.ActionGenerateMusicRequest:
			return o.dispatchMusic(ctx, reply)
		}
	}
	o.session.Store.Append(conversation.NewAssistantReply(conversation.AssistantContent{Reply: reply}))
	return nil
}

// dispatchMusic runs the placeholder protocol: a loading assistant item is
// appended under a master ID, the generation job runs, and the same ID is
// upserted with the final outcome so the item keeps its position.
func (o *Orchestrator) dispatchMusic(ctx context.Context, reply *chat.Reply) error {
	master := conversation.NewAssistantReply(conversation.AssistantContent{
		Reply:          reply,
		IsLoadingAudio: true,
	})
	if err := o.session.Store.Append(master); err != nil {
		return err
	}
	operationID := uuid.NewString()

	seconds := reply.Solution.DurationSeconds
	if seconds <= 0 {
		seconds = o.defaultSeconds
	}
	prompt := reply.Solution.MusicGenerationPrompt

	var result *generation.Result
	var err error
	if reply.Solution.Action == chat.ActionGenerateMusicRequest {
		inputPath := o.latestAudioPath()
		if inputPath == "" {
			err = errors.New("no audio available to continue")
		} else {
			result, err = o.generator.StartAudioConditioned(ctx, operationID, inputPath, prompt, seconds)
		}
	} else {
		result, err = o.generator.StartTextConditioned(ctx, operationID, prompt, seconds)
	}

	final := master
	final.Assistant = &conversation.AssistantContent{Reply: reply}
	switch {
	case err == nil:
		final.Assistant.PlayableAudioPath = result.ArtifactURL
		o.broker.Publish(events.AudioReady, events.AudioReadyPayload{
			OperationID: operationID,
			ArtifactURL: result.ArtifactURL,
			Tempo:       result.Features.Tempo,
			Key:         result.Features.Key,
			DisplayName: result.DisplayName,
			Prompt:      result.Prompt,
		})
	case errors.Is(err, context.Canceled):
		final.Assistant.MusicGenerationCancelled = true
	default:
		o.logger.Error("music generation failed", "operation", operationID, "error", err)
		final.Assistant.MusicGenerationError = err.Error()
	}
	o.session.Store.Upsert(final)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// latestAudioPath finds the most recent playable audio in the transcript,
// preferring generated artifacts over raw user uploads.
func (o *Orchestrator) latestAudioPath() string {
	items := o.session.Store.Items()
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		switch item.Type {
		case conversation.ItemAssistantReply:
			if item.Assistant != nil && item.Assistant.PlayableAudioPath != "" {
				return item.Assistant.PlayableAudioPath
			}
		case conversation.ItemUserFile:
			if chat.IsAudioPath(item.FilePath) {
				return item.FilePath
			}
		}
	}
	return ""
}

// StartNewChat resets session state and the remote chat, and seeds the
// fresh transcript with the acknowledgment reply.
func (o *Orchestrator) StartNewChat(ctx context.Context) error {
	o.session.Reset()
	o.broker.Publish(events.SessionReset, nil)

	reply, err := o.controller.Reset(ctx)
	if err != nil {
		o.broker.Publish(events.ProcessingError, err.Error())
		o.session.Store.Append(conversation.NewSystemMessage(fmt.Sprintf("Could not start a new chat: %v", err)))
		return err
	}
	o.session.Store.Append(conversation.NewAssistantReply(conversation.AssistantContent{Reply: reply}))
	return nil
}

// Welcome posts the session greeting. Never fails; the controller degrades
// to a fallback greeting on any error.
func (o *Orchestrator) Welcome(ctx context.Context) {
	reply := o.controller.SendWelcomeTurn(ctx)
	o.session.Store.Append(conversation.NewAssistantReply(conversation.AssistantContent{Reply: reply}))
}

// CancelGeneration forwards a cancel request for a running music job.
func (o *Orchestrator) CancelGeneration(ctx context.Context, operationID string) (generation.CancelOutcome, error) {
	return o.generator.Cancel(ctx, operationID)
}
