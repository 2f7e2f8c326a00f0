package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"meeting-copilot/internal/buildinfo"
)

func newVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(buildinfo.Get())
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", buildinfo.ServiceName, buildinfo.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
