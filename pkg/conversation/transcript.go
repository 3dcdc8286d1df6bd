package conversation

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TranscriptMeta is the frontmatter written at the top of an exported
// transcript.
type TranscriptMeta struct {
	ID      string    `yaml:"id"`
	Title   string    `yaml:"title,omitempty"`
	Started time.Time `yaml:"started"`
	Items   int       `yaml:"items"`
}

// ExportTranscript renders the conversation log as a markdown notebook with
// YAML frontmatter, cells separated by "---". User turns are quoted,
// assistant turns get a heading. Intended for archiving a finished session.
func ExportTranscript(items []Item, meta TranscriptMeta) ([]byte, error) {
	meta.Items = len(items)
	front, err := yaml.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n")

	for _, item := range items {
		b.WriteString("\n---\n\n")
		switch item.Type {
		case ItemUserText:
			for _, line := range strings.Split(item.Text, "\n") {
				b.WriteString("> " + line + "\n")
			}
		case ItemUserFile:
			if item.AccompanyingText != "" {
				b.WriteString("> " + item.AccompanyingText + "\n")
			}
			b.WriteString(fmt.Sprintf("> [attachment: %s]\n", item.FilePath))
		case ItemAssistantReply:
			b.WriteString("## Assistant\n\n")
			b.WriteString(renderAssistant(item.Assistant))
			b.WriteString("\n")
		case ItemSystemMessage:
			b.WriteString(fmt.Sprintf("_%s_\n", item.Message))
		}
	}
	return []byte(b.String()), nil
}

func renderAssistant(content *AssistantContent) string {
	if content == nil || content.Reply == nil {
		return "(empty)"
	}
	reply := content.Reply
	if reply.Solution == nil {
		return reply.Raw
	}
	var b strings.Builder
	b.WriteString(reply.Solution.Code)
	if reply.Solution.Reasoning != "" {
		b.WriteString("\n\n" + reply.Solution.Reasoning)
	}
	if content.PlayableAudioPath != "" {
		b.WriteString(fmt.Sprintf("\n\n[audio: %s]", content.PlayableAudioPath))
	}
	if content.MusicGenerationError != "" {
		b.WriteString(fmt.Sprintf("\n\n(music generation failed: %s)", content.MusicGenerationError))
	}
	return b.String()
}
