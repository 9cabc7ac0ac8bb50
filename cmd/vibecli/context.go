package main

import (
	"fmt"
	"strings"

	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/spf13/cobra"
)

const previewLen = 200

func newContextCmd(root *rootOptions) *cobra.Command {
	var showTurns, clearTurns, resetFile bool

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Inspect or reset the conversation context of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadConfig(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			if resetFile {
				if err := session.Reset(rt.dir); err != nil {
					return err
				}
				fmt.Fprintln(out, "Context reset.")
				return nil
			}

			store, err := rt.openContext()
			if err != nil {
				return err
			}
			switch {
			case clearTurns:
				store.Clear()
				if err := store.Save(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Context cleared.")
			case showTurns:
				turns := store.Turns()
				if len(turns) == 0 {
					fmt.Fprintln(out, "Context is empty.")
					return nil
				}
				for _, t := range turns {
					fmt.Fprintf(out, "[%s] %s: %s\n", t.Timestamp.Format("2006-01-02 15:04:05"), t.Role, preview(t.Content))
				}
			default:
				fmt.Fprintf(out, "Context %s: %d of %d turns stored in %s\n", store.ID(), store.Len(), session.MaxTurns, session.Path(rt.dir))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTurns, "show", false, "Print the stored turns")
	cmd.Flags().BoolVar(&clearTurns, "clear", false, "Forget every stored turn")
	cmd.Flags().BoolVar(&resetFile, "reset", false, "Delete the context file")
	cmd.MarkFlagsMutuallyExclusive("show", "clear", "reset")
	return cmd
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > previewLen {
		return tools.TruncateUTF8(s, previewLen) + "..."
	}
	return s
}
