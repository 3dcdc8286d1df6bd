package generation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rubinapp/rubin/pkg/exec"
)

// DurationProber reads the playable length of a local audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFProbeProber shells out to ffprobe for the container-level duration.
type FFProbeProber struct {
	executor exec.CommandExecutor
}

// NewFFProbeProber wires a prober over the given executor.
func NewFFProbeProber(executor exec.CommandExecutor) *FFProbeProber {
	return &FFProbeProber{executor: executor}
}

// Duration returns the file duration in seconds.
func (p *FFProbeProber) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.executor.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", out, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("probed duration %f is not positive", seconds)
	}
	return seconds, nil
}
