package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rubinapp/rubin/pkg/config"
)

var (
	configPath string
	logLevel   string
)

// loadConfig resolves configuration for a command run, honoring the
// --config and --log-level flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// NewRootCmd assembles the rubin command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rubin",
		Short:         "Conversational music assistant core",
		Long:          "rubin runs the assistant core: chat with problem extraction from screen and audio captures, and music generation driven by the conversation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: ./rubin.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(NewBridgeCmd())
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewTagsCmd())
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}
