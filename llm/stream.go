package llm

import (
	"context"
	"sync"

	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/rs/zerolog/log"
)

type EventKind int

const (
	// EventText carries an incremental piece of assistant text.
	EventText EventKind = iota
	// EventToolCallFragment carries part of the arguments of one tool call.
	// Name is set at least on the first fragment of an ID.
	EventToolCallFragment
	// EventTurnComplete is the last event of a successful stream.
	EventTurnComplete
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventToolCallFragment:
		return "tool_call_fragment"
	case EventTurnComplete:
		return "turn_complete"
	}
	return "unknown"
}

// ToolCallRef identifies one tool call announced during a stream.
type ToolCallRef struct {
	ID   string
	Name string
}

// Event is a backend-neutral streaming event. Only the fields of its Kind are set.
type Event struct {
	Kind         EventKind
	Text         string
	ID           string
	Name         string
	ArgsFragment string
	ToolCalls    []ToolCallRef
}

// Request is everything an adapter needs for one turn.
type Request struct {
	System  string
	History []session.Turn
	Message string
	Tools   []tools.Spec
}

// EventStream is a pull iterator over the events of one turn.
//
// A stream that ends cleanly yields exactly one EventTurnComplete as its final
// event. A stream that fails never yields EventTurnComplete and reports the
// failure from Err once Next returns false.
type EventStream interface {
	Next() bool
	Current() Event
	Err() error
	// Close stops the stream and releases the underlying connection.
	Close() error
}

// Adapter turns a request into a stream of normalized events.
type Adapter interface {
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// pumpFunc reads a provider stream and forwards text and tool call fragments.
// emit returns false once the consumer has gone away; the pump should return then.
// A nil return means the provider finished the turn normally.
type pumpFunc func(ctx context.Context, emit func(Event) bool) error

type eventStream struct {
	events    chan Event
	cancel    context.CancelFunc
	cur       Event
	err       error
	closeOnce sync.Once
}

// newEventStream runs pump in its own goroutine and enforces the EventStream
// contract on its output: the terminal event is produced here, listing every
// tool call ID in order of first appearance.
func newEventStream(ctx context.Context, pump pumpFunc) EventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{events: make(chan Event), cancel: cancel}

	go func() {
		defer close(s.events)

		var refs []ToolCallRef
		index := map[string]int{}
		send := func(ev Event) bool {
			select {
			case s.events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		emit := func(ev Event) bool {
			switch ev.Kind {
			case EventTurnComplete:
				log.Warn().Msg("Adapter emitted its own turn-complete event, ignoring")
				return true
			case EventToolCallFragment:
				if ev.ID == "" {
					log.Warn().Str("name", ev.Name).Msg("Dropping tool call fragment without id")
					return true
				}
				if i, seen := index[ev.ID]; !seen {
					index[ev.ID] = len(refs)
					refs = append(refs, ToolCallRef{ID: ev.ID, Name: ev.Name})
				} else if refs[i].Name == "" {
					refs[i].Name = ev.Name
				}
			}
			return send(ev)
		}

		err := pump(ctx, emit)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			s.err = err
			return
		}
		if !send(Event{Kind: EventTurnComplete, ToolCalls: refs}) {
			s.err = ctx.Err()
		}
	}()
	return s
}

func (s *eventStream) Next() bool {
	ev, ok := <-s.events
	if !ok {
		return false
	}
	s.cur = ev
	return true
}

func (s *eventStream) Current() Event { return s.cur }

// Err is only meaningful after Next has returned false.
func (s *eventStream) Err() error { return s.err }

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		for range s.events {
		}
	})
	return nil
}
