// Package acp serves VibeCLI over the Agent Client Protocol so that editors
// such as Zed can drive it. Messages are newline-delimited JSON-RPC 2.0 on
// stdio.
//
// Methods:
//   - initialize: protocol version and capabilities
//   - session/new: opens the persisted context of cwd; the session id is the context id
//   - session/load: reopens a context and replays its turns
//   - session/prompt: runs one turn and answers with a stop reason
//   - session/cancel (notification): cancels the running prompt of a session
//
// During a prompt the server emits session/update notifications:
// agent_message_chunk for streamed text, tool_call when an invocation is
// assembled and tool_call_update when it finishes.
package acp
