package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/playground/cmd/playground/internal/build"
	"github.com/haivivi/playground/pkg/cli"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				fmt.Fprintln(cmd.OutOrStdout(), build.String())
				return nil
			}
			f, err := cli.ParseFormat(format)
			if err != nil {
				return err
			}
			return cli.Output(cmd.OutOrStdout(), build.Get(), f)
		},
	}
	cmd.Flags().String("format", "", "structured output format (yaml, json)")
	return cmd
}
