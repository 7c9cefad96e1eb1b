package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/playground/pkg/cli"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying defaults, the config file,
the environment and flags. The API key is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("output")
			f, err := cli.ParseFormat(format)
			if err != nil {
				return err
			}
			return cli.Output(cmd.OutOrStdout(), cfg.Redacted(), f)
		},
	}
	cmd.Flags().StringP("output", "o", "yaml", "output format (yaml, json)")
	return cmd
}
