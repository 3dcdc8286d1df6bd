package llm

import (
	"context"
	"fmt"
)

// MockClient is a canned-response Client for tests. Responses are returned
// in order; when exhausted the last one repeats.
type MockClient struct {
	Responses []string

	// Err fails every send/generate call.
	Err error

	// StartErr fails session creation.
	StartErr error

	// Sent records the parts of every call, session or one-shot.
	Sent [][]Part

	next int
}

func (m *MockClient) pop() (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("mock client: no responses configured")
	}
	resp := m.Responses[m.next]
	if m.next < len(m.Responses)-1 {
		m.next++
	}
	return resp, nil
}

func (m *MockClient) StartSession(_ context.Context, _ []Message) (Session, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	return &mockSession{client: m}, nil
}

func (m *MockClient) GenerateOnce(_ context.Context, parts []Part) (string, error) {
	m.Sent = append(m.Sent, parts)
	return m.pop()
}

type mockSession struct {
	client *MockClient
}

func (s *mockSession) Send(_ context.Context, parts []Part) (string, error) {
	s.client.Sent = append(s.client.Sent, parts)
	return s.client.pop()
}
