package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rubinapp/rubin/pkg/exec"
)

// Capturer is the boundary to the platform capture mechanics. The core only
// needs paths back; how pixels or samples get to disk is not its concern.
type Capturer interface {
	// CaptureScreen writes a screenshot and returns its path.
	CaptureScreen(ctx context.Context) (string, error)

	// CaptureAudioSegment records for the given duration and returns the
	// path of the written file.
	CaptureAudioSegment(ctx context.Context, d time.Duration) (string, error)

	// Preview returns an inline representation of a capture suitable for a
	// thumbnail: a data URL for images, "" for audio.
	Preview(path string) (string, error)

	// Delete removes a captured file from disk.
	Delete(path string) error
}

// CommandCapturer shells out to configured capture commands. On macOS the
// screen command is typically `screencapture -x <path>`.
type CommandCapturer struct {
	executor  exec.CommandExecutor
	dir       string
	screenCmd string
	audioCmd  string
}

// NewCommandCapturer creates a capturer writing into dir using the given
// commands. The path placeholder in each command is appended as the final
// argument.
func NewCommandCapturer(executor exec.CommandExecutor, dir, screenCmd, audioCmd string) *CommandCapturer {
	return &CommandCapturer{executor: executor, dir: dir, screenCmd: screenCmd, audioCmd: audioCmd}
}

func (c *CommandCapturer) CaptureScreen(ctx context.Context) (string, error) {
	if c.screenCmd == "" {
		return "", fmt.Errorf("no screen capture command configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	path := filepath.Join(c.dir, uuid.NewString()+".png")
	if err := c.executor.Execute(c.screenCmd, "-x", path); err != nil {
		return "", fmt.Errorf("screen capture: %w", err)
	}
	return path, nil
}

func (c *CommandCapturer) CaptureAudioSegment(ctx context.Context, d time.Duration) (string, error) {
	if c.audioCmd == "" {
		return "", fmt.Errorf("no audio capture command configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	path := filepath.Join(c.dir, uuid.NewString()+".wav")
	seconds := fmt.Sprintf("%d", int(d.Seconds()))
	if err := c.executor.Execute(c.audioCmd, "-d", seconds, path); err != nil {
		return "", fmt.Errorf("audio capture: %w", err)
	}
	return path, nil
}

var previewMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

func (c *CommandCapturer) Preview(path string) (string, error) {
	mime, ok := previewMIME[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read capture %s: %w", path, err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (c *CommandCapturer) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete capture %s: %w", path, err)
	}
	return nil
}
