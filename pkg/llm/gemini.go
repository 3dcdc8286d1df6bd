package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client for the given API key and model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func toGenaiParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Data != nil {
			out = append(out, &genai.Part{InlineData: &genai.Blob{Data: p.Data, MIMEType: p.MIMEType}})
			continue
		}
		out = append(out, &genai.Part{Text: p.Text})
	}
	return out
}

// StartSession opens a chat seeded with the given priming history.
func (g *GeminiClient) StartSession(ctx context.Context, priming []Message) (Session, error) {
	history := make([]*genai.Content, 0, len(priming))
	for _, msg := range priming {
		history = append(history, &genai.Content{Role: msg.Role, Parts: toGenaiParts(msg.Parts)})
	}
	chat, err := g.client.Chats.Create(ctx, g.model, nil, history)
	if err != nil {
		return nil, fmt.Errorf("start gemini chat: %w", err)
	}
	return &geminiSession{chat: chat}, nil
}

// GenerateOnce issues a stateless generation call.
func (g *GeminiClient) GenerateOnce(ctx context.Context, parts []Part) (string, error) {
	content := []*genai.Content{{Role: genai.RoleUser, Parts: toGenaiParts(parts)}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, content, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

type geminiSession struct {
	chat *genai.Chat
}

func (s *geminiSession) Send(ctx context.Context, parts []Part) (string, error) {
	converted := toGenaiParts(parts)
	values := make([]genai.Part, 0, len(converted))
	for _, p := range converted {
		values = append(values, *p)
	}
	resp, err := s.chat.SendMessage(ctx, values...)
	if err != nil {
		return "", fmt.Errorf("gemini chat send: %w", err)
	}
	return resp.Text(), nil
}
