package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/rs/zerolog/log"
)

// Store is the conversation log a terminal session reads and appends to.
type Store interface {
	agent.Recorder
	Clear()
	Save() error
}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	orch      *agent.Orchestrator
	store     Store
	verbosity agent.ToolVerbosity
	in        *bufio.Scanner
	out       io.Writer
}

// New creates a new Terminal reading user input from in and writing to out.
func New(o *agent.Orchestrator, store Store, verbosity agent.ToolVerbosity, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		orch:      o,
		store:     store,
		verbosity: verbosity,
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

// Run starts the interactive terminal session. It returns on EOF, /quit or /exit.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		t.report(t.RunOnce(ctx, initialPrompt))
	}

	for {
		fmt.Fprint(t.out, "You: ")
		if !t.in.Scan() {
			// EOF or read error ends the session
			fmt.Fprintln(t.out)
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		switch userInput {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			t.store.Clear()
			t.save()
			fmt.Fprintln(t.out, "Context cleared.")
			continue
		}

		t.report(t.RunOnce(ctx, userInput))
	}
	return t.in.Err()
}

// RunOnce runs a single turn. Ctrl+C cancels the turn, not the session.
func (t *Terminal) RunOnce(ctx context.Context, message string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(t.out, "VibeCLI: ")
	res, err := t.orch.RunTurn(turnCtx, message, t.callbacks())
	fmt.Fprintln(t.out)

	agent.Record(t.store, message, res, err)
	t.save()
	return err
}

func (t *Terminal) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnText: func(text string) {
			fmt.Fprint(t.out, text)
		},
		OnToolCall: func(inv tools.Invocation) {
			switch t.verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "\n-> %s %v\n", inv.Name, inv.Args)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "\n-> %s\n", inv.Name)
			}
		},
		OnToolResult: func(inv tools.Invocation, res tools.Result) {
			if t.verbosity == agent.ToolVerbosityNone {
				return
			}
			if !res.OK() {
				fmt.Fprintf(t.out, "x %s: %s\n", inv.Name, res.Reason())
				return
			}
			if t.verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "<- %s:\n%s\n", inv.Name, res.Output)
			} else {
				fmt.Fprintf(t.out, "<- %s done\n", inv.Name)
			}
		},
		ShouldExecuteTool: func(inv tools.Invocation) bool {
			fmt.Fprintf(t.out, "\nAllow %s %v? (y/n): ", inv.Name, inv.Args)
			if !t.in.Scan() {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(t.in.Text()))
			return answer == "y" || answer == "yes"
		},
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "\nWarning: %s\n", warning)
		},
	}
}

func (t *Terminal) report(err error) {
	if err == nil {
		return
	}
	var failure *errors.StreamFailure
	if errors.As(err, &failure) {
		fmt.Fprintf(t.out, "[response interrupted: %v]\n", failure.Err)
		return
	}
	fmt.Fprintf(t.out, "Error: %v\n", err)
}

func (t *Terminal) save() {
	if err := t.store.Save(); err != nil {
		log.Warn().Err(err).Msg("Failed to save context")
		fmt.Fprintf(t.out, "Warning: failed to save context: %v\n", err)
	}
}
