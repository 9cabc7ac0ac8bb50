package agent

import (
	"fmt"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
)

// maxRecordedOutput caps how much of a tool result is kept in the conversation log.
const maxRecordedOutput = 4000

// Recorder is the write side of the conversation store.
type Recorder interface {
	AppendTurn(t session.Turn)
}

// Record folds the outcome of RunTurn into the conversation log: the user
// message, whatever the assistant said (partial text included) and one system
// turn per tool result. Turns rejected before streaming are not recorded.
func Record(store Recorder, message string, res *TurnResult, err error) {
	var failure *errors.StreamFailure
	switch {
	case res != nil:
		store.AppendTurn(session.Turn{Role: session.RoleUser, Content: message})
		if res.Text != "" {
			store.AppendTurn(session.Turn{Role: session.RoleAssistant, Content: res.Text})
		}
		for i, inv := range res.Invocations {
			store.AppendTurn(session.Turn{Role: session.RoleSystem, Content: describeResult(inv.Name, inv.ID, res.Results[i].Output, res.Results[i].Err)})
		}
	case errors.As(err, &failure):
		store.AppendTurn(session.Turn{Role: session.RoleUser, Content: message})
		if failure.PartialText != "" {
			store.AppendTurn(session.Turn{Role: session.RoleAssistant, Content: failure.PartialText})
		}
		store.AppendTurn(session.Turn{Role: session.RoleSystem, Content: fmt.Sprintf("The response was interrupted: %v", failure.Err)})
	}
}

func describeResult(name, id, output string, err error) string {
	if err != nil {
		return fmt.Sprintf("Tool %s (%s) failed: %v", name, id, err)
	}
	if len(output) > maxRecordedOutput {
		output = tools.TruncateUTF8(output, maxRecordedOutput) + "\n... [truncated]"
	}
	return fmt.Sprintf("Tool %s (%s) returned:\n%s", name, id, output)
}
