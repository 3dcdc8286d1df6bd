// Package config loads the application configuration from a YAML file and
// RUBIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	GeminiAPIKey      string        `mapstructure:"gemini_api_key"`
	ReplicateAPIToken string        `mapstructure:"replicate_api_token"`
	Model             string        `mapstructure:"model"`
	PredictionVersion string        `mapstructure:"prediction_version"`
	CaptureLimit      int           `mapstructure:"capture_limit"`
	CaptureDir        string        `mapstructure:"capture_dir"`
	OutputDir         string        `mapstructure:"output_dir"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollMaxAttempts   int           `mapstructure:"poll_max_attempts"`
	GenerationSeconds int           `mapstructure:"generation_seconds"`
	SerializeTurns    bool          `mapstructure:"serialize_turns"`
	VocabularyPath    string        `mapstructure:"vocabulary_path"`
	FeatureScript     string        `mapstructure:"feature_script"`
	ScreenshotCommand string        `mapstructure:"screenshot_command"`
	AudioCommand      string        `mapstructure:"audio_command"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Load reads the config file at path (optional; "" searches the working
// directory for rubin.yaml) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rubin")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RUBIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// every key needs a default registered so environment-only values are
	// visible to Unmarshal
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("replicate_api_token", "")
	v.SetDefault("prediction_version", "")
	v.SetDefault("vocabulary_path", "")
	v.SetDefault("feature_script", "")
	v.SetDefault("screenshot_command", "")
	v.SetDefault("audio_command", "")
	v.SetDefault("model", "gemini-1.5-flash")
	v.SetDefault("capture_limit", 2)
	v.SetDefault("capture_dir", filepath.Join(".", "captures"))
	v.SetDefault("output_dir", filepath.Join(".", "audio"))
	v.SetDefault("poll_interval", "2500ms")
	v.SetDefault("poll_max_attempts", 0)
	v.SetDefault("generation_seconds", 8)
	v.SetDefault("serialize_turns", false)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2500 * time.Millisecond
	}
	return &cfg, nil
}

// ValidateForChat ensures the chat surface can start.
func (c *Config) ValidateForChat() error {
	if c.GeminiAPIKey == "" {
		return errors.New("gemini_api_key is required (set RUBIN_GEMINI_API_KEY)")
	}
	return nil
}

// ValidateForGeneration ensures the music generation surface can start.
func (c *Config) ValidateForGeneration() error {
	if c.ReplicateAPIToken == "" {
		return errors.New("replicate_api_token is required (set RUBIN_REPLICATE_API_TOKEN)")
	}
	return nil
}
