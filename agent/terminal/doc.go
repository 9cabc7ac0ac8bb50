// Package terminal implements the interactive command-line front end.
//
// A Terminal reads user messages line by line, streams the assistant's reply as
// it arrives, shows tool activity according to the configured verbosity and,
// in prompt mode, asks before running destructive tools. Every turn is folded
// into the project's conversation log and saved.
//
// Commands:
//
//   - /quit, /exit: end the session
//   - /clear: empty the conversation context
//
// Ctrl+C cancels the running turn and returns to the prompt.
package terminal
