package main

import (
	"fmt"
	"strings"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/agent/terminal"
	"github.com/spf13/cobra"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		message   string
		mode      string
		verbosity string
		toolset   string
		override  backendOverride
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Chat with the assistant",
		Long:  "Starts an interactive session, or answers a single message with -m. Ctrl+C cancels the running turn.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opMode, err := agent.ParseMode(mode)
			if err != nil {
				return err
			}
			toolVerbosity, err := agent.ParseToolVerbosity(verbosity)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := loadRuntime(ctx, root, toolset, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			backend, adapter, err := rt.adapter(ctx, override)
			if err != nil {
				return err
			}
			store, err := rt.openContext()
			if err != nil {
				return err
			}
			orch := rt.orchestrator(backend, adapter, rt.registry, rt.dir, store, opMode)
			term := terminal.New(orch, store, toolVerbosity, cmd.InOrStdin(), cmd.OutOrStdout())

			if message != "" {
				return term.RunOnce(ctx, message)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VibeCLI is ready (%s, %d tools, %d turns of context). Type /quit to leave, /clear to forget.\n",
				backend, rt.registry.Len(), store.Len())
			return term.Run(ctx, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send a single message and exit")
	cmd.Flags().StringVar(&mode, "mode", string(agent.ModePrompt), "Tool approval mode: auto or prompt")
	cmd.Flags().StringVar(&verbosity, "tool-verbosity", string(agent.ToolVerbosityInfo), "Tool output: none, info or all")
	cmd.Flags().StringVarP(&toolset, "toolset", "t", "", "Toolset to expose (defaults to 'default')")
	cmd.Flags().StringVar(&override.backend, "backend", "", "Use this backend instead of the configured one")
	cmd.Flags().StringVar(&override.model, "model", "", "Use this model instead of the configured one")
	return cmd
}
