package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(root *rootOptions) *cobra.Command {
	var list bool
	var toolset string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show the tools available to the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd.Context(), root, toolset, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			if !list {
				fmt.Fprintf(out, "%d tools available. Use --list to see them.\n", rt.registry.Len())
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, t := range rt.registry.List() {
				destructive := ""
				if rt.registry.IsDestructive(t.Name(), nil) {
					destructive = "*"
				}
				fmt.Fprintf(w, "%s%s\t%s\n", t.Name(), destructive, t.Description())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out, "\n* may modify the project and needs approval in prompt mode")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List every tool with its description")
	cmd.Flags().StringVarP(&toolset, "toolset", "t", "", "Toolset to show (defaults to 'default')")
	return cmd
}
