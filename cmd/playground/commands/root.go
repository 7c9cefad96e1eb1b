// Package commands implements the playground CLI.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/playground/pkg/config"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playground",
		Short: "Agent playground backend",
		Long: `playground - a small backend for chatting with a tool-using agent.

The agent talks to an OpenAI-compatible endpoint (OpenRouter by default).
Conversation history is kept per user in local files, an S3 bucket, or a
DynamoDB table.

Configuration comes from flags, environment variables (a .env file in the
working directory is loaded first) and an optional YAML file:

  OPENROUTER_API_KEY   API key (falls back to OPENAI_API_KEY)
  OPENROUTER_MODEL     model id, default deepseek/deepseek-v3.2
  OPENROUTER_BASE_URL  endpoint, default https://openrouter.ai/api/v1
  TABLE_NAME, TABLE_REGION, PRIMARY_KEY
                       all three select the DynamoDB history backend

Examples:
  # Run the HTTP backend
  playground serve --addr :8000

  # One-off prompt from the terminal
  playground chat "what is 17 * 23?"

  # Show the effective configuration
  playground config`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("env-file", ".env", "dotenv file loaded into the environment if present")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("model", "", "model id")
	pf.String("base-url", "", "OpenAI-compatible endpoint")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration with the flags of cmd applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(config.Options{
		File:    file,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
