package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rubinapp/rubin/pkg/exec"
	"github.com/rubinapp/rubin/pkg/generation"
	"github.com/rubinapp/rubin/pkg/logging"
	"github.com/rubinapp/rubin/pkg/tags"
)

// NewGenerateCmd runs a single generation job from the command line,
// bypassing the chat surface. Useful for trying prompts and for checking
// credentials.
func NewGenerateCmd() *cobra.Command {
	var (
		seconds   int
		inputPath string
		skipTags  bool
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a music clip from a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForGeneration(); err != nil {
				return err
			}
			logging.SetLevel(cfg.LogLevel)
			pretty := logging.NewPrettyLogger()

			var vocab *tags.Vocabulary
			if cfg.VocabularyPath != "" && !skipTags {
				vocab, err = tags.LoadVocabulary(cfg.VocabularyPath)
				if err != nil {
					return err
				}
			}

			executor := &exec.RealCommandExecutor{}
			var extractor generation.FeatureExtractor
			if cfg.FeatureScript != "" {
				extractor = generation.NewScriptFeatureExtractor(executor, "", cfg.FeatureScript)
			}

			coordinator := generation.NewCoordinator(generation.NewReplicateClient(cfg.ReplicateAPIToken), generation.Options{
				Vocabulary: vocab,
				Prober:     generation.NewFFProbeProber(executor),
				Extractor:  extractor,
				Fetcher:    generation.NewHTTPFetcher(),
				Logger:     logging.NewLogger("generation"),
				Version:    cfg.PredictionVersion,
				OutputDir:  cfg.OutputDir,
				Policy: generation.PollPolicy{
					Interval:    cfg.PollInterval,
					MaxAttempts: cfg.PollMaxAttempts,
				},
				OnProgress: func(_ string, _ generation.JobStatus, message string) {
					pretty.InfoPretty(message)
				},
			})

			ctx := cmd.Context()
			operationID := uuid.NewString()
			var result *generation.Result
			if inputPath != "" {
				result, err = coordinator.StartAudioConditioned(ctx, operationID, inputPath, args[0], seconds)
			} else {
				result, err = coordinator.StartTextConditioned(ctx, operationID, args[0], seconds)
			}
			if err != nil {
				return err
			}

			pretty.Success(fmt.Sprintf("%s (%s)", result.DisplayName, result.ArtifactURL))
			pretty.InfoPretty(fmt.Sprintf("tempo %s, key %s", result.Features.Tempo, result.Features.Key))
			return nil
		},
	}

	cmd.Flags().IntVarP(&seconds, "seconds", "s", 8, "Seconds of new audio to generate")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Audio file to continue instead of starting from text only")
	cmd.Flags().BoolVar(&skipTags, "skip-tag-filter", false, "Send the prompt without vocabulary filtering")
	return cmd
}
