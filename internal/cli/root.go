// Package cli defines the meeting-copilot command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. main only executes it.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "meeting-copilot",
		Short: "Interview copilot bot for video meetings",
		Long: `meeting-copilot sends a bot into a video meeting as a guest, transcribes
the conversation live and suggests follow-up questions to the interviewer.
When the bot leaves it writes a post-mortem summary of the interview.

Configuration is read from an optional YAML file (--config), a .env file in
the working directory and the environment, in increasing precedence.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newVersionCommand())
	return root
}
