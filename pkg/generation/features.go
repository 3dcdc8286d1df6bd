package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rubinapp/rubin/pkg/exec"
)

// FeatureExtractor derives tempo and key from a finished artifact.
// Extraction is best-effort: failures degrade to UnknownFeatures upstream
// and never fail the job.
type FeatureExtractor interface {
	Extract(ctx context.Context, path string) (Features, error)
}

// ScriptFeatureExtractor runs an external analysis script that prints a
// JSON object with "bpm" and "key" fields on stdout.
type ScriptFeatureExtractor struct {
	executor   exec.CommandExecutor
	python     string
	scriptPath string
}

// NewScriptFeatureExtractor wires the extractor. python defaults to
// "python3" when empty.
func NewScriptFeatureExtractor(executor exec.CommandExecutor, python, scriptPath string) *ScriptFeatureExtractor {
	if python == "" {
		python = "python3"
	}
	return &ScriptFeatureExtractor{executor: executor, python: python, scriptPath: scriptPath}
}

// Extract runs the analysis script against path.
func (e *ScriptFeatureExtractor) Extract(ctx context.Context, path string) (Features, error) {
	out, err := e.executor.Output(ctx, e.python, e.scriptPath, path)
	if err != nil {
		return UnknownFeatures(), fmt.Errorf("run feature extraction: %w", err)
	}
	var features Features
	if err := json.Unmarshal([]byte(out), &features); err != nil {
		return UnknownFeatures(), fmt.Errorf("parse feature extraction output: %w", err)
	}
	if features.Tempo == "" {
		features.Tempo = "N/A"
	}
	if features.Key == "" {
		features.Key = "N/A"
	}
	return features, nil
}
