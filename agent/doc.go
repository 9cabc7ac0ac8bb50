// Package agent provides the turn orchestrator shared by every front end.
//
// An Orchestrator owns one conversation. RunTurn sends the user message and a
// bounded suffix of the history to the configured backend adapter, forwards
// streamed text to the caller immediately, reassembles tool call arguments
// that arrive in fragments and, once the backend completes the turn, runs the
// requested tools concurrently through a tools.Executor.
//
// # States
//
// A turn moves Idle -> Streaming -> ExecutingTools -> Idle; the tool phase is
// skipped when the backend requested no tools. Only one turn may be active;
// a concurrent RunTurn fails with errors.ErrTurnInProgress.
//
// # Failures
//
//   - errors.ErrUnsupportedBackend: no adapter for the configured backend.
//   - *errors.StreamFailure: the stream broke; PartialText holds the text
//     received so far and no tool runs.
//   - Per invocation, in TurnResult.Results: errors.ErrMalformedToolArguments,
//     errors.ErrUnknownCapability, errors.ErrInvalidArguments,
//     *errors.ExecutionError and errors.ErrToolDenied.
//
// # Modes
//
//   - ModeAuto: tools run without confirmation.
//   - ModePrompt: destructive tools run only if Callbacks.ShouldExecuteTool approves.
//
// The orchestrator never writes the conversation log; callers fold results
// in with Record.
//
// # Subpackages
//
// agent/terminal: interactive command-line front end.
//
// agent/acp: Agent Client Protocol server over stdio for IDE integration.
package agent
