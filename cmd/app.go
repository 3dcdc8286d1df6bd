package cmd

import (
	"context"
	"fmt"

	"github.com/rubinapp/rubin/pkg/capture"
	"github.com/rubinapp/rubin/pkg/chat"
	"github.com/rubinapp/rubin/pkg/config"
	"github.com/rubinapp/rubin/pkg/conversation"
	"github.com/rubinapp/rubin/pkg/events"
	"github.com/rubinapp/rubin/pkg/exec"
	"github.com/rubinapp/rubin/pkg/generation"
	"github.com/rubinapp/rubin/pkg/llm"
	"github.com/rubinapp/rubin/pkg/logging"
	"github.com/rubinapp/rubin/pkg/processing"
	"github.com/rubinapp/rubin/pkg/session"
	"github.com/rubinapp/rubin/pkg/tags"
)

// app bundles the fully wired core for a command surface.
type app struct {
	cfg          *config.Config
	session      *session.Session
	broker       *events.Broker
	orchestrator *processing.Orchestrator
	capturer     capture.Capturer
	coordinator  *generation.Coordinator
}

// buildApp wires the whole core from configuration. Chat credentials are
// required; generation credentials are only required when requireGen is set,
// so the chat surface works without a prediction token.
func buildApp(ctx context.Context, cfg *config.Config, requireGen bool) (*app, error) {
	if err := cfg.ValidateForChat(); err != nil {
		return nil, err
	}
	if requireGen {
		if err := cfg.ValidateForGeneration(); err != nil {
			return nil, err
		}
	}

	logging.SetLevel(cfg.LogLevel)
	executor := &exec.RealCommandExecutor{}
	broker := events.NewBroker()

	store := conversation.NewStore()
	queues := capture.NewManager(cfg.CaptureLimit)
	sess := session.New(store, queues)

	client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	controller := chat.NewController(client, logging.NewLogger("chat"))

	var vocab *tags.Vocabulary
	if cfg.VocabularyPath != "" {
		vocab, err = tags.LoadVocabulary(cfg.VocabularyPath)
		if err != nil {
			return nil, err
		}
	}

	var extractor generation.FeatureExtractor
	if cfg.FeatureScript != "" {
		extractor = generation.NewScriptFeatureExtractor(executor, "", cfg.FeatureScript)
	}

	coordinator := generation.NewCoordinator(generation.NewReplicateClient(cfg.ReplicateAPIToken), generation.Options{
		Vocabulary: vocab,
		Prober:     generation.NewFFProbeProber(executor),
		Extractor:  extractor,
		Fetcher:    generation.NewHTTPFetcher(),
		Logger:     logging.NewLogger("generation"),
		Version:    cfg.PredictionVersion,
		OutputDir:  cfg.OutputDir,
		Policy: generation.PollPolicy{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
		},
		OnProgress: func(operationID string, status generation.JobStatus, message string) {
			broker.Publish(events.JobProgress, events.JobProgressPayload{
				OperationID: operationID,
				Status:      string(status),
				Message:     message,
			})
		},
	})

	orchestrator := processing.NewOrchestrator(sess, controller, coordinator, broker, processing.Options{
		SerializeTurns:           cfg.SerializeTurns,
		DefaultGenerationSeconds: cfg.GenerationSeconds,
		Logger:                   logging.NewLogger("processing"),
	})

	capturer := capture.NewCommandCapturer(executor, cfg.CaptureDir, cfg.ScreenshotCommand, cfg.AudioCommand)

	return &app{
		cfg:          cfg,
		session:      sess,
		broker:       broker,
		orchestrator: orchestrator,
		capturer:     capturer,
		coordinator:  coordinator,
	}, nil
}
