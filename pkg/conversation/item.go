package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/rubinapp/rubin/pkg/chat"
)

// ItemType discriminates the conversation item union.
type ItemType string

const (
	ItemUserText       ItemType = "user_text"
	ItemUserFile       ItemType = "user_file"
	ItemAssistantReply ItemType = "ai_response"
	ItemSystemMessage  ItemType = "system_message"
)

// AssistantContent is the payload of an ItemAssistantReply item: the parsed
// model reply plus fields the generation coordinator attaches while a music
// job is in flight or after it resolves.
type AssistantContent struct {
	Reply                    *chat.Reply `json:"reply"`
	IsLoadingAudio           bool        `json:"isLoadingAudio,omitempty"`
	PlayableAudioPath        string      `json:"playableAudioPath,omitempty"`
	MusicGenerationError     string      `json:"musicGenerationError,omitempty"`
	MusicGenerationCancelled bool        `json:"musicGenerationCancelled,omitempty"`
}

// Item is one entry in the conversation log. Items are immutable once
// stored; replacement by identical ID is the only mutation.
type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Seq is assigned by the store on append and preserved on upsert, so
	// consumers can assert ordering deterministically.
	Seq uint64 `json:"seq"`

	// ItemUserText
	Text string `json:"text,omitempty"`

	// ItemUserFile
	FilePath         string `json:"filePath,omitempty"`
	Preview          string `json:"preview,omitempty"`
	AccompanyingText string `json:"accompanyingText,omitempty"`

	// ItemAssistantReply
	Assistant *AssistantContent `json:"assistant,omitempty"`

	// ItemSystemMessage
	Message string `json:"message,omitempty"`
}

// NewUserText builds a user text item with a fresh ID.
func NewUserText(text string) Item {
	return Item{ID: uuid.NewString(), Type: ItemUserText, Timestamp: time.Now(), Text: text}
}

// NewUserFile builds a user file item with a fresh ID.
func NewUserFile(path, preview, accompanying string) Item {
	return Item{
		ID:               uuid.NewString(),
		Type:             ItemUserFile,
		Timestamp:        time.Now(),
		FilePath:         path,
		Preview:          preview,
		AccompanyingText: accompanying,
	}
}

// NewAssistantReply builds an assistant item around a parsed reply.
func NewAssistantReply(content AssistantContent) Item {
	return Item{ID: uuid.NewString(), Type: ItemAssistantReply, Timestamp: time.Now(), Assistant: &content}
}

// NewSystemMessage builds a system message item.
func NewSystemMessage(message string) Item {
	return Item{ID: uuid.NewString(), Type: ItemSystemMessage, Timestamp: time.Now(), Message: message}
}
