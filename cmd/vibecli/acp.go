package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/agent/acp"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/spf13/cobra"
)

func newACPCmd(root *rootOptions) *cobra.Command {
	var toolset string
	var override backendOverride

	cmd := &cobra.Command{
		Use:   "acp",
		Short: "Serve the Agent Client Protocol on stdio",
		Long:  "Runs VibeCLI as an ACP agent for editors such as Zed. Stdout carries JSON-RPC only; logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, root, toolset, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			backend, adapter, err := rt.adapter(ctx, override)
			if err != nil {
				return err
			}
			// ACP sessions always run in auto mode.
			factory := func(store *session.Store) (*agent.Orchestrator, error) {
				registry, err := rt.registryFor(store.ProjectDir())
				if err != nil {
					return nil, err
				}
				return rt.orchestrator(backend, adapter, registry, store.ProjectDir(), store, agent.ModeAuto), nil
			}
			return acp.Run(ctx, factory, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&toolset, "toolset", "t", "", "Toolset to expose (defaults to 'default')")
	cmd.Flags().StringVar(&override.backend, "backend", "", "Use this backend instead of the configured one")
	cmd.Flags().StringVar(&override.model, "model", "", "Use this model instead of the configured one")
	return cmd
}
