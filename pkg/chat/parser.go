package chat

import (
	"encoding/json"
	"strings"
)

// CleanResponse strips markdown code fences and surrounding prose from a
// raw model response, slicing between the first '{' and the last '}' when a
// brace pair exists. When no braces are found it falls back to trimming
// only; that path usually fails JSON parsing downstream and is surfaced as
// a MalformedResponseError by the parse functions.
func CleanResponse(text string) string {
	cleaned := text

	// Drop a leading fence line ("```" or "```json") and a trailing fence.
	if idx := strings.Index(cleaned, "```"); idx != -1 {
		rest := cleaned[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.LastIndex(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		cleaned = rest
	}

	first := strings.IndexByte(cleaned, '{')
	last := strings.LastIndexByte(cleaned, '}')
	if first != -1 && last > first {
		cleaned = cleaned[first : last+1]
	}
	return strings.TrimSpace(cleaned)
}

// ParseReply parses a raw model response into a Reply. Responses that are
// valid JSON but do not match the solution contract come back as KindRaw
// rather than an error, so consumers can still show something. Responses
// that are not JSON at all fail with MalformedResponseError carrying the
// original text.
func ParseReply(raw string) (*Reply, error) {
	cleaned := CleanResponse(raw)

	var envelope replyEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		// Maybe the model returned the solution fields without the wrapper.
		var flat Solution
		if flatErr := json.Unmarshal([]byte(cleaned), &flat); flatErr == nil {
			if flat.ProblemStatement != "" || flat.Code != "" || flat.Reasoning != "" {
				return &Reply{Kind: KindSolution, Solution: &flat, Raw: raw}, nil
			}
			return &Reply{Kind: KindRaw, Raw: raw}, nil
		}
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	if envelope.Solution != nil {
		return &Reply{Kind: KindSolution, Solution: envelope.Solution, Raw: raw}, nil
	}

	// Valid JSON without a solution wrapper: try the flat shape before
	// giving up to the raw variant.
	var flat Solution
	if err := json.Unmarshal([]byte(cleaned), &flat); err == nil {
		if flat.ProblemStatement != "" || flat.Code != "" || flat.Reasoning != "" {
			return &Reply{Kind: KindSolution, Solution: &flat, Raw: raw}, nil
		}
	}
	return &Reply{Kind: KindRaw, Raw: raw}, nil
}

// ParseProblemInfo parses the one-shot extraction response.
func ParseProblemInfo(raw string) (*ProblemInfo, error) {
	cleaned := CleanResponse(raw)
	var info ProblemInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	return &info, nil
}
