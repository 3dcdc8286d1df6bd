// Package tags holds the approved descriptive vocabulary for music
// generation prompts and the filtering applied before a prompt is sent to
// the generation backend.
package tags

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// columns of the vocabulary CSV that contribute tags.
var tagColumns = []string{"main_genres", "sub_genres", "simple_moods", "moods", "characters"}

// Vocabulary is the approved tag set. Matching is case-insensitive; the
// set is built once at startup and read-only afterwards.
type Vocabulary struct {
	approved map[string]struct{}
}

// LoadVocabulary reads the CSV at path and builds the approved set.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()
	return ParseVocabulary(f)
}

// ParseVocabulary builds a Vocabulary from CSV content. The first row is
// the header; only the tag columns are consumed and placeholder values are
// skipped.
func ParseVocabulary(r io.Reader) (*Vocabulary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read vocabulary header: %w", err)
	}
	wanted := make(map[int]bool)
	for i, name := range header {
		for _, col := range tagColumns {
			if strings.EqualFold(strings.TrimSpace(name), col) {
				wanted[i] = true
			}
		}
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("vocabulary header has no tag columns")
	}

	approved := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read vocabulary row: %w", err)
		}
		for i, value := range record {
			if !wanted[i] {
				continue
			}
			tag := strings.TrimSpace(value)
			if tag == "" || strings.EqualFold(tag, "N/A") || strings.EqualFold(tag, "mm:ss") {
				continue
			}
			approved[strings.ToLower(tag)] = struct{}{}
		}
	}
	return &Vocabulary{approved: approved}, nil
}

// Len reports the number of approved tags.
func (v *Vocabulary) Len() int { return len(v.approved) }

// IsApproved reports whether tag is in the vocabulary, ignoring case and
// surrounding whitespace.
func (v *Vocabulary) IsApproved(tag string) bool {
	_, ok := v.approved[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// FilterPrompt splits a comma-separated prompt, keeps approved tags and
// returns the filtered prompt plus whatever was dropped. An empty filtered
// result means nothing survived and the caller should reject the prompt.
func (v *Vocabulary) FilterPrompt(prompt string) (string, []string) {
	var kept, dropped []string
	for _, raw := range strings.Split(prompt, ",") {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if v.IsApproved(tag) {
			kept = append(kept, tag)
		} else {
			dropped = append(dropped, tag)
		}
	}
	return strings.Join(kept, ", "), dropped
}
