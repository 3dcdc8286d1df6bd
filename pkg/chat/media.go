package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rubinapp/rubin/pkg/llm"
)

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".mp3":  "audio/mp3",
	".wav":  "audio/wav",
}

// MIMETypeForPath resolves the vendor MIME type for a capture file.
func MIMETypeForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return "", &UnsupportedMediaError{Path: path}
	}
	return mime, nil
}

// IsAudioPath reports whether a capture path is an audio file by extension.
func IsAudioPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".mp3" || ext == ".wav"
}

// resolveFilePart reads a file and packages it as a binary part. The error
// is typed so the caller can reject the whole turn before any remote call.
func resolveFilePart(path string) (llm.Part, error) {
	mime, err := MIMETypeForPath(path)
	if err != nil {
		return llm.Part{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Part{}, fmt.Errorf("read attachment %s: %w", path, err)
	}
	return llm.DataPart(data, mime), nil
}
