package chat

import "encoding/json"

// ReplyKind discriminates the parsed shape of a model response.
type ReplyKind string

const (
	// KindSolution is the structured contract the rest of the system
	// depends on.
	KindSolution ReplyKind = "solution"

	// KindRaw is the fallback for responses that could not be parsed into
	// the contract. Raw always holds the original text for diagnostics.
	KindRaw ReplyKind = "raw"
)

// Action values the model may attach to a solution.
const (
	ActionGenerateMusicFromText = "generate_music_from_text"
	ActionGenerateMusicRequest  = "generate_music_request"
)

// Solution is the structured payload the model is instructed to return.
type Solution struct {
	Code                  string   `json:"code"`
	ProblemStatement      string   `json:"problem_statement"`
	Context               string   `json:"context"`
	SuggestedResponses    []string `json:"suggested_responses"`
	Reasoning             string   `json:"reasoning"`
	Action                string   `json:"action,omitempty"`
	MusicGenerationPrompt string   `json:"musicGenerationPrompt,omitempty"`
	DurationSeconds       int      `json:"durationSeconds,omitempty"`
}

// Reply is the tagged result of parsing a model response. Consumers switch
// on Kind instead of probing optional fields.
type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Solution *Solution `json:"solution,omitempty"`
	Raw      string    `json:"raw,omitempty"`
}

// replyEnvelope matches the wire shape {"solution": {...}}.
type replyEnvelope struct {
	Solution *Solution `json:"solution"`
}

// ProblemInfo is the structured result of a one-shot extraction call.
type ProblemInfo struct {
	ProblemStatement   string   `json:"problem_statement"`
	Context            string   `json:"context"`
	SuggestedResponses []string `json:"suggested_responses"`
	Reasoning          string   `json:"reasoning"`
}

// MarshalPrompt renders a value as indented JSON for inclusion in a prompt.
func MarshalPrompt(v interface{}) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}
