package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trolo/export/pkg/config"
)

func newConfigsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "List the built-in model configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
