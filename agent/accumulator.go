package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/llm"
	"github.com/Fenix46/VibeCLI/tools"
)

type pendingCall struct {
	name string
	args strings.Builder
}

// accumulator reassembles tool call arguments delivered in fragments.
// It lives for a single turn.
type accumulator struct {
	order []string
	calls map[string]*pendingCall
}

func newAccumulator() *accumulator {
	return &accumulator{calls: make(map[string]*pendingCall)}
}

func (a *accumulator) add(ev llm.Event) {
	c, ok := a.calls[ev.ID]
	if !ok {
		c = &pendingCall{}
		a.calls[ev.ID] = c
		a.order = append(a.order, ev.ID)
	}
	if c.name == "" {
		c.name = ev.Name
	}
	c.args.WriteString(ev.ArgsFragment)
}

type assembledCall struct {
	inv tools.Invocation
	// err is set when the arguments could not be parsed.
	err error
}

// finalize turns the buffered calls into invocations in the order listed by
// the turn-complete event. Fragments for ids that event does not list are dropped.
func (a *accumulator) finalize(refs []llm.ToolCallRef, warn func(string)) []assembledCall {
	listed := make(map[string]bool, len(refs))
	var out []assembledCall
	for _, ref := range refs {
		if listed[ref.ID] {
			continue
		}
		listed[ref.ID] = true

		name, raw := ref.Name, ""
		if c, ok := a.calls[ref.ID]; ok {
			if name == "" {
				name = c.name
			}
			raw = c.args.String()
		}
		args, err := parseArgs(name, raw)
		out = append(out, assembledCall{
			inv: tools.Invocation{ID: ref.ID, Name: name, Args: args},
			err: err,
		})
	}
	for _, id := range a.order {
		if !listed[id] {
			warn(fmt.Sprintf("dropping fragments of unannounced tool call '%s'", id))
		}
	}
	return out
}

// parseArgs decodes a complete argument buffer. An empty buffer means no arguments.
func parseArgs(name, raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedToolArguments, "'%s': %v", name, err)
	}
	switch args := v.(type) {
	case map[string]interface{}:
		return args, nil
	case nil:
		return map[string]interface{}{}, nil
	}
	return nil, errors.Wrapf(errors.ErrMalformedToolArguments, "'%s': arguments are not a JSON object", name)
}
