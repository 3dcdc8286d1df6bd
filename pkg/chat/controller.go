package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rubinapp/rubin/pkg/llm"
	"github.com/rubinapp/rubin/pkg/logging"
)

// systemPrompt is the fixed persona every session is seeded with.
const systemPrompt = `You are Rick Rubin, you provide wisdom, solutions, and feedback to musicians and artists. You will have to analyze the user's input and provide a solution in a clear and simple format.`

// jsonOnlyInstruction is appended to every chat turn so the model keeps to
// the structured contract.
const jsonOnlyInstruction = "\nImportant: Respond ONLY with the JSON object as specified in the initial instructions."

const welcomePrompt = `Introduce yourself to the user! Explain that you can generate music from a description, listen to and continue their music, or answer questions about anything they show you. Keep it concise and welcoming. Respond ONLY with the JSON object format specified in our instructions.`

// TurnPart is one element of a user turn: inline text or a local file to
// attach. Exactly one field is set.
type TurnPart struct {
	Text     string
	FilePath string
}

// Controller wraps the single logical chat session. It owns session
// (re)initialization and the dispatch of user turns; it does not serialize
// concurrent sends, that is the orchestrator's policy decision.
type Controller struct {
	client llm.Client
	logger logging.Logger

	mu      sync.Mutex
	session llm.Session
}

// NewController creates a controller. The session is established lazily on
// the first send, or explicitly via Reset.
func NewController(client llm.Client, logger logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{client: client, logger: logger}
}

// primingHistory seeds a fresh session: the persona prompt framed as the
// first user message, and a synthetic model acknowledgment so the first
// real exchange has grounded context in the contract shape.
func primingHistory() []llm.Message {
	ack := Reply{
		Kind: KindSolution,
		Solution: &Solution{
			Code:               "Waiting for user input.",
			ProblemStatement:   "N/A",
			Context:            "N/A",
			SuggestedResponses: []string{},
			Reasoning:          "I am ready to assist.",
		},
	}
	return []llm.Message{
		{
			Role: llm.RoleUser,
			Parts: []llm.Part{llm.TextPart(
				systemPrompt +
					"\nBegin interaction by analyzing the user's first message and responding in the specified JSON format:\n" +
					ResponseSchemaJSON(),
			)},
		},
		{
			Role:  llm.RoleModel,
			Parts: []llm.Part{llm.TextPart(MarshalPrompt(replyEnvelope{Solution: ack.Solution}))},
		},
	}
}

// Reset discards any existing session and starts a fresh one. Idempotent:
// calling while already initialized starts over, which is the mechanism
// behind "new chat". Returns the canned acknowledgment reply.
func (c *Controller) Reset(ctx context.Context) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.client.StartSession(ctx, primingHistory())
	if err != nil {
		return nil, fmt.Errorf("initialize chat session: %w", err)
	}
	c.session = session
	c.logger.Info("chat session reset")
	return &Reply{
		Kind: KindSolution,
		Solution: &Solution{
			Code:               "New chat started. How can I help?",
			ProblemStatement:   "New Session",
			SuggestedResponses: []string{},
			Reasoning:          "Chat has been reset.",
		},
	}, nil
}

func (c *Controller) ensureSession(ctx context.Context) (llm.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		session, err := c.client.StartSession(ctx, primingHistory())
		if err != nil {
			return nil, fmt.Errorf("initialize chat session: %w", err)
		}
		c.session = session
	}
	return c.session, nil
}

// SendUserTurn resolves every part, appends the JSON-only instruction and
// issues the chat call. File resolution is atomic: an unsupported or
// unreadable attachment rejects the whole turn before any remote call.
// Remote failures come back as RemoteCallError carrying the turn's text.
func (c *Controller) SendUserTurn(ctx context.Context, parts []TurnPart) (*Reply, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty user turn")
	}

	userText := ""
	resolved := make([]llm.Part, 0, len(parts)+1)
	for _, part := range parts {
		if part.FilePath != "" {
			filePart, err := resolveFilePart(part.FilePath)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, filePart)
			continue
		}
		if userText == "" {
			userText = part.Text
		}
		resolved = append(resolved, llm.TextPart(part.Text))
	}
	resolved = append(resolved, llm.TextPart(jsonOnlyInstruction))

	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, &RemoteCallError{UserText: userText, Err: err}
	}

	raw, err := session.Send(ctx, resolved)
	if err != nil {
		return nil, &RemoteCallError{UserText: userText, Err: err}
	}
	reply, err := ParseReply(raw)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// SendWelcomeTurn elicits a structured greeting once per fresh session.
// It never fails: any error degrades to a hardcoded greeting so the UI is
// never left without one.
func (c *Controller) SendWelcomeTurn(ctx context.Context) *Reply {
	session, err := c.ensureSession(ctx)
	if err == nil {
		var raw string
		raw, err = session.Send(ctx, []llm.Part{llm.TextPart(welcomePrompt)})
		if err == nil {
			if reply, parseErr := ParseReply(raw); parseErr == nil {
				return reply
			}
			err = fmt.Errorf("welcome reply unparseable")
		}
	}
	c.logger.Warn("welcome turn degraded to fallback", "error", err)
	return &Reply{
		Kind: KindSolution,
		Solution: &Solution{
			Code:               "Hi! I'm Rubin. Something went wrong on my end, but I'm here to help. Feel free to ask me anything about your music.",
			ProblemStatement:   "Welcome",
			SuggestedResponses: []string{},
			Reasoning:          "Fallback greeting after a welcome-call failure.",
		},
	}
}

const extractionPromptSuffix = `

Please analyze this input and extract the following information in JSON format:
{
  "problem_statement": "A clear statement of the problem or situation.",
  "context": "Relevant background or context.",
  "suggested_responses": ["First possible answer or action", "Second possible answer or action", "..."],
  "reasoning": "Explanation of why these suggestions are appropriate."
}
Important: Return ONLY the JSON object, without any markdown formatting or code blocks.`

func (c *Controller) extractProblem(ctx context.Context, path string) (*ProblemInfo, error) {
	filePart, err := resolveFilePart(path)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.GenerateOnce(ctx, []llm.Part{
		llm.TextPart(systemPrompt + extractionPromptSuffix),
		filePart,
	})
	if err != nil {
		return nil, &RemoteCallError{Err: err}
	}
	return ParseProblemInfo(raw)
}

// ExtractProblemFromImage runs a stateless extraction call on an image
// capture and parses the structured problem result.
func (c *Controller) ExtractProblemFromImage(ctx context.Context, path string) (*ProblemInfo, error) {
	return c.extractProblem(ctx, path)
}

// ExtractProblemFromAudio runs a stateless extraction call on an audio
// capture.
func (c *Controller) ExtractProblemFromAudio(ctx context.Context, path string) (*ProblemInfo, error) {
	return c.extractProblem(ctx, path)
}

const describeSuffix = ` Describe this input in a short, concise answer. In addition to your main answer, suggest several possible actions or responses the user could take next. Do not return a structured JSON object, just answer naturally and be concise.`

func (c *Controller) describe(ctx context.Context, path string) (string, error) {
	filePart, err := resolveFilePart(path)
	if err != nil {
		return "", err
	}
	text, err := c.client.GenerateOnce(ctx, []llm.Part{
		llm.TextPart(systemPrompt + "\n" + describeSuffix),
		filePart,
	})
	if err != nil {
		return "", &RemoteCallError{Err: err}
	}
	return text, nil
}

// DescribeImage returns a free-text description of an image file.
func (c *Controller) DescribeImage(ctx context.Context, path string) (string, error) {
	return c.describe(ctx, path)
}

// DescribeAudio returns a free-text description of an audio file.
func (c *Controller) DescribeAudio(ctx context.Context, path string) (string, error) {
	return c.describe(ctx, path)
}

// GenerateFollowUp asks for an updated reply given the previous assistant
// reply and the user's follow-up text, outside the chat session.
func (c *Controller) GenerateFollowUp(ctx context.Context, previous *Reply, userQuery string) (*Reply, error) {
	prompt := fmt.Sprintf(`%s

You previously provided the following information/solution:
%s

The user has now responded with:
%s

Please provide an updated or follow-up response based on the user's input. Maintain the same JSON output format as your previous response, focusing on addressing the user's specific feedback, question, or correction.
Important: Return ONLY the JSON object, without any markdown formatting or code blocks.`,
		systemPrompt, marshalPrevious(previous), userQuery)

	raw, err := c.client.GenerateOnce(ctx, []llm.Part{llm.TextPart(prompt)})
	if err != nil {
		return nil, &RemoteCallError{UserText: userQuery, Err: err}
	}
	return ParseReply(raw)
}

func marshalPrevious(previous *Reply) string {
	if previous == nil {
		return "{}"
	}
	if previous.Kind == KindSolution && previous.Solution != nil {
		return MarshalPrompt(replyEnvelope{Solution: previous.Solution})
	}
	return previous.Raw
}
