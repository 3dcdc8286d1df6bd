package llm

import "context"

// Role values for priming history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one element of a multimodal message: inline text, or binary data
// with its MIME type. Exactly one of Text or Data is set.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// TextPart builds a text part.
func TextPart(text string) Part { return Part{Text: text} }

// DataPart builds a binary part.
func DataPart(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// Message is a role-tagged sequence of parts, used to prime a session.
type Message struct {
	Role  string
	Parts []Part
}

// Session is a stateful chat with model-side history.
type Session interface {
	// Send delivers parts as one turn and returns the raw model text.
	Send(ctx context.Context, parts []Part) (string, error)
}

// Client is the boundary to the LLM vendor. No guarantee is made about
// response format beyond best-effort adherence to prompt instructions;
// callers parse defensively.
type Client interface {
	// StartSession opens a chat seeded with priming history.
	StartSession(ctx context.Context, priming []Message) (Session, error)

	// GenerateOnce issues a stateless one-shot call.
	GenerateOnce(ctx context.Context, parts []Part) (string, error)
}
