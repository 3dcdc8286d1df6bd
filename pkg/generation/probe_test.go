package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubinapp/rubin/pkg/exec"
)

func TestFFProbeProberParsesDuration(t *testing.T) {
	mock := &exec.MockCommandExecutor{
		OutputFunc: func(string, ...string) (string, error) { return "12.734694", nil },
	}
	p := NewFFProbeProber(mock)

	seconds, err := p.Duration(context.Background(), "/tmp/in.wav")
	require.NoError(t, err)
	assert.InDelta(t, 12.734694, seconds, 1e-9)

	require.Len(t, mock.Commands, 1)
	assert.True(t, strings.HasPrefix(mock.Commands[0], "ffprobe -v error"))
	assert.Contains(t, mock.Commands[0], "/tmp/in.wav")
}

func TestFFProbeProberRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
	}{
		{name: "not a number", output: "N/A"},
		{name: "zero duration", output: "0.0"},
		{name: "command failure", err: errors.New("ffprobe: no such file")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &exec.MockCommandExecutor{
				OutputFunc: func(string, ...string) (string, error) { return tt.output, tt.err },
			}
			p := NewFFProbeProber(mock)

			_, err := p.Duration(context.Background(), "/tmp/in.wav")
			assert.Error(t, err)
		})
	}
}

func TestScriptFeatureExtractor(t *testing.T) {
	mock := &exec.MockCommandExecutor{
		OutputFunc: func(string, ...string) (string, error) {
			return `{"bpm": "92", "key": "E minor"}`, nil
		},
	}
	e := NewScriptFeatureExtractor(mock, "", "/opt/rubin/extract_audio_features.py")

	features, err := e.Extract(context.Background(), "/tmp/out.wav")
	require.NoError(t, err)
	assert.Equal(t, "92", features.Tempo)
	assert.Equal(t, "E minor", features.Key)

	require.Len(t, mock.Commands, 1)
	assert.True(t, strings.HasPrefix(mock.Commands[0], "python3 /opt/rubin/extract_audio_features.py"))
}

func TestScriptFeatureExtractorFailureReturnsUnknown(t *testing.T) {
	mock := &exec.MockCommandExecutor{
		OutputFunc: func(string, ...string) (string, error) { return "", errors.New("boom") },
	}
	e := NewScriptFeatureExtractor(mock, "", "script.py")

	features, err := e.Extract(context.Background(), "/tmp/out.wav")
	assert.Error(t, err)
	assert.Equal(t, UnknownFeatures(), features)
}

func TestScriptFeatureExtractorFillsMissingFields(t *testing.T) {
	mock := &exec.MockCommandExecutor{
		OutputFunc: func(string, ...string) (string, error) { return `{"bpm": "120"}`, nil },
	}
	e := NewScriptFeatureExtractor(mock, "", "script.py")

	features, err := e.Extract(context.Background(), "/tmp/out.wav")
	require.NoError(t, err)
	assert.Equal(t, "120", features.Tempo)
	assert.Equal(t, "N/A", features.Key)
}
