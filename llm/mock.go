package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockAdapter parrots the user's message back word by word. It never requests tools.
type MockAdapter struct{}

func (m *MockAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	reply := fmt.Sprintf("I am a mock LLM. You said: '%s'. I cannot use tools.", req.Message)
	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		for _, word := range strings.SplitAfter(reply, " ") {
			if !emit(Event{Kind: EventText, Text: word}) {
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

// ScriptedAdapter replays a fixed sequence of events, then fails with Err if set.
// Each call to Stream consumes the next script; the last script repeats.
type ScriptedAdapter struct {
	Scripts [][]Event
	Err     error
	// Requests records every request received.
	Requests []Request

	mu    sync.Mutex
	calls int
}

func (s *ScriptedAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	var script []Event
	if len(s.Scripts) > 0 {
		i := s.calls
		if i >= len(s.Scripts) {
			i = len(s.Scripts) - 1
		}
		script = s.Scripts[i]
	}
	s.calls++
	failure := s.Err
	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		for _, ev := range script {
			if !emit(ev) {
				return ctx.Err()
			}
		}
		return failure
	}), nil
}

// Text is shorthand for a text event.
func Text(s string) Event { return Event{Kind: EventText, Text: s} }

// Fragment is shorthand for a tool call fragment event.
func Fragment(id, name, args string) Event {
	return Event{Kind: EventToolCallFragment, ID: id, Name: name, ArgsFragment: args}
}
