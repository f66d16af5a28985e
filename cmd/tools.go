package cmd

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

// newToolsCmd creates the `tools` command, which prints the announced tool definitions.
func newToolsCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool definitions announced in tools/list as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Nothing is launched; only the operation table is read.
			components := buildServerComponents(app)
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(components.Server.Tools(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode tool definitions: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
