package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rubinapp/rubin/pkg/capture"
	"github.com/rubinapp/rubin/pkg/conversation"
	"github.com/rubinapp/rubin/pkg/events"
	"github.com/rubinapp/rubin/pkg/generation"
	"github.com/rubinapp/rubin/pkg/logging"
)

// bridgeCommand is one line-delimited JSON request on stdin.
type bridgeCommand struct {
	Command     string `json:"command"`
	Text        string `json:"text,omitempty"`
	Path        string `json:"path,omitempty"`
	OperationID string `json:"operationId,omitempty"`
	Seconds     int    `json:"seconds,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
}

// bridgeReply is the direct response to a command, distinct from the event
// stream entries.
type bridgeReply struct {
	Kind    string      `json:"kind"`
	Command string      `json:"command,omitempty"`
	Error   string      `json:"error,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// bridgeEvent wraps a broker event for the wire.
type bridgeEvent struct {
	Kind      string      `json:"kind"`
	Type      events.Type `json:"type"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewBridgeCmd runs the core as a long-lived process speaking
// line-delimited JSON: commands in on stdin, events and replies out on
// stdout. This is the surface an overlay shell attaches to.
func NewBridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the core as a stdin/stdout JSON bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			application, err := buildApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer application.broker.Close()

			return runBridge(ctx, application, os.Stdin, os.Stdout)
		},
	}
}

func runBridge(ctx context.Context, application *app, in io.Reader, out io.Writer) error {
	logger := logging.NewLogger("bridge")

	var writeMu sync.Mutex
	write := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		line, err := json.Marshal(v)
		if err != nil {
			logger.Error("encode bridge output", "error", err)
			return
		}
		fmt.Fprintln(out, string(line))
	}

	eventCh := application.broker.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eventCh {
			write(bridgeEvent{
				Kind:      "event",
				Type:      ev.Type,
				Seq:       ev.Seq,
				Timestamp: ev.Timestamp,
				Payload:   ev.Payload,
			})
		}
	}()

	application.orchestrator.Welcome(ctx)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var command bridgeCommand
		if err := json.Unmarshal(line, &command); err != nil {
			write(bridgeReply{Kind: "reply", Error: fmt.Sprintf("bad command: %v", err)})
			continue
		}
		result, err := dispatchBridge(ctx, application, command)
		reply := bridgeReply{Kind: "reply", Command: command.Command, Result: result}
		if err != nil {
			reply.Error = err.Error()
		}
		write(reply)
	}

	application.broker.Unsubscribe(eventCh)
	<-done
	return scanner.Err()
}

func dispatchBridge(ctx context.Context, application *app, command bridgeCommand) (interface{}, error) {
	o := application.orchestrator
	switch command.Command {
	case "send-user-text":
		return nil, o.ProcessUserText(ctx, command.Text)

	case "send-user-file":
		return nil, o.ProcessUserFile(ctx, command.Path, command.Text)

	case "process":
		return nil, o.Process(ctx)

	case "start-new-chat":
		return nil, o.StartNewChat(ctx)

	case "cancel-turn":
		o.CancelTurn()
		return nil, nil

	case "cancel-generation":
		outcome, err := o.CancelGeneration(ctx, command.OperationID)
		return map[string]string{"outcome": string(outcome)}, err

	case "take-screenshot":
		path, err := application.capturer.CaptureScreen(ctx)
		if err != nil {
			return nil, err
		}
		if err := enqueueForView(application, path); err != nil {
			return nil, err
		}
		preview, err := application.capturer.Preview(path)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path, "preview": preview}, nil

	case "start-generation":
		operationID := uuid.NewString()
		if command.Seconds <= 0 {
			command.Seconds = application.cfg.GenerationSeconds
		}
		var result *generation.Result
		var err error
		if command.Path != "" {
			result, err = application.coordinator.StartAudioConditioned(ctx, operationID, command.Path, command.Prompt, command.Seconds)
		} else {
			result, err = application.coordinator.StartTextConditioned(ctx, operationID, command.Prompt, command.Seconds)
		}
		if err != nil {
			return nil, err
		}
		return events.AudioReadyPayload{
			OperationID: operationID,
			ArtifactURL: result.ArtifactURL,
			Tempo:       result.Features.Tempo,
			Key:         result.Features.Key,
			DisplayName: result.DisplayName,
			Prompt:      result.Prompt,
		}, nil

	case "capture-audio":
		seconds := command.Seconds
		if seconds <= 0 {
			seconds = 5
		}
		path, err := application.capturer.CaptureAudioSegment(ctx, time.Duration(seconds)*time.Second)
		if err != nil {
			return nil, err
		}
		if err := enqueueForView(application, path); err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil

	case "delete-capture":
		application.session.Queues.Delete(command.Path)
		if err := application.capturer.Delete(command.Path); err != nil {
			return nil, err
		}
		return nil, nil

	case "clear-queues":
		application.session.Queues.ClearAll()
		application.broker.Publish(events.QueueCleared, nil)
		return nil, nil

	case "list-queue":
		return application.session.Queues.PeekActive(application.session.View()), nil

	case "export-transcript":
		data, err := conversation.ExportTranscript(application.session.Store.Items(), conversation.TranscriptMeta{
			ID:      uuid.NewString(),
			Title:   "Conversation",
			Started: time.Now(),
		})
		if err != nil {
			return nil, err
		}
		return string(data), nil

	default:
		return nil, fmt.Errorf("unknown command %q", command.Command)
	}
}

// enqueueForView routes a fresh capture into the queue that matches the
// current view: primary in the queue view, extra in the solutions view.
func enqueueForView(application *app, path string) error {
	if application.session.View() == capture.ViewSolutions {
		return application.session.Queues.EnqueueExtra(path)
	}
	return application.session.Queues.EnqueuePrimary(path)
}
