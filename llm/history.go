package llm

import (
	"strings"

	"github.com/Fenix46/VibeCLI/session"
)

// chatMessage is a turn reduced to the two roles every provider accepts.
type chatMessage struct {
	Role    session.Role
	Content string
}

// conversation flattens history plus the new message into alternating
// user/assistant messages that start with a user message. System turns (tool
// results folded into the log) are sent as user content, and consecutive
// messages of the same role are merged.
func conversation(history []session.Turn, message string) []chatMessage {
	var out []chatMessage
	add := func(role session.Role, content string) {
		if strings.TrimSpace(content) == "" {
			return
		}
		if role != session.RoleAssistant {
			role = session.RoleUser
		}
		if len(out) == 0 && role == session.RoleAssistant {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, chatMessage{Role: role, Content: content})
	}
	for _, t := range history {
		add(t.Role, t.Content)
	}
	add(session.RoleUser, message)
	return out
}
