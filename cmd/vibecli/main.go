// Command vibecli is a terminal assistant that streams replies from a model
// backend and runs the tools it asks for inside the current project.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.2.0"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	dir      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "vibecli",
		Short:         "AI coding assistant for the terminal",
		Long:          "vibecli streams answers from Anthropic, OpenAI, Gemini or Bedrock models and lets them read, edit and run things in your project.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "C", "", "Project directory (defaults to the working directory)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(newSetupCmd())
	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newContextCmd(opts))
	root.AddCommand(newToolsCmd(opts))
	root.AddCommand(newACPCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
