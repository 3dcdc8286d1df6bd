package events

import "time"

// Type identifies a named event crossing the presentation boundary.
type Type string

const (
	// ConversationUpdated carries the conversation item that was appended or
	// replaced. Emitted once per store mutation, in mutation order.
	ConversationUpdated Type = "conversation-updated"

	// ProcessingStarted signals that an orchestrator pass began doing work.
	ProcessingStarted Type = "processing-started"

	// ProcessingNoOp signals that a trigger found nothing to process. Not an
	// error; the UI uses it to stop spinners.
	ProcessingNoOp Type = "processing-no-op"

	// ProblemExtracted carries the structured problem pulled from a capture.
	ProblemExtracted Type = "problem-extracted"

	// ProcessingError carries a user-visible failure message.
	ProcessingError Type = "processing-error"

	// JobProgress carries a human-readable progress message for a generation
	// job, keyed by operation ID.
	JobProgress Type = "job-progress"

	// AudioReady announces a finished generation artifact.
	AudioReady Type = "audio-ready"

	// QueueCleared signals that the capture queues were emptied.
	QueueCleared Type = "queue-cleared"

	// SessionReset signals that a new chat session replaced the old one.
	SessionReset Type = "session-reset"
)

// Event is a single named event with an opaque payload. Seq is a monotonic
// counter assigned by the broker so consumers and tests can assert ordering.
type Event struct {
	Type      Type
	Payload   interface{}
	Seq       uint64
	Timestamp time.Time
}

// JobProgressPayload is the payload for JobProgress events. Status is the
// job lifecycle state the message was emitted under.
type JobProgressPayload struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// AudioReadyPayload is the payload for AudioReady events.
type AudioReadyPayload struct {
	OperationID string `json:"operationId"`
	ArtifactURL string `json:"artifactUrl"`
	Tempo       string `json:"tempo"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Prompt      string `json:"prompt"`
}
