package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rubinapp/rubin/pkg/logging"
	"github.com/rubinapp/rubin/pkg/tags"
)

// NewTagsCmd inspects the approved vocabulary and previews prompt
// filtering.
func NewTagsCmd() *cobra.Command {
	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect the approved generation vocabulary",
	}

	checkCmd := &cobra.Command{
		Use:   "check <prompt>",
		Short: "Show how a prompt would be filtered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.VocabularyPath == "" {
				return fmt.Errorf("no vocabulary configured (set vocabulary_path)")
			}
			vocab, err := tags.LoadVocabulary(cfg.VocabularyPath)
			if err != nil {
				return err
			}

			pretty := logging.NewPrettyLogger()
			filtered, dropped := vocab.FilterPrompt(args[0])
			if filtered == "" {
				return fmt.Errorf("no approved tags in %q", args[0])
			}
			pretty.Success(filtered)
			if len(dropped) > 0 {
				pretty.InfoPretty("dropped: " + strings.Join(dropped, ", "))
			}
			return nil
		},
	}

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Print the size of the approved vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.VocabularyPath == "" {
				return fmt.Errorf("no vocabulary configured (set vocabulary_path)")
			}
			vocab, err := tags.LoadVocabulary(cfg.VocabularyPath)
			if err != nil {
				return err
			}
			fmt.Printf("%d approved tags\n", vocab.Len())
			return nil
		},
	}

	tagsCmd.AddCommand(checkCmd)
	tagsCmd.AddCommand(countCmd)
	return tagsCmd
}
