package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/llm"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ParseMode accepts "auto" and "prompt".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModePrompt:
		return Mode(s), nil
	}
	return "", errors.New("invalid mode '%s', expected 'auto' or 'prompt'", s)
}

// ToolVerbosity controls how much of tool execution a front end shows.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch ToolVerbosity(s) {
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return ToolVerbosity(s), nil
	}
	return "", errors.New("invalid tool verbosity '%s', expected 'none', 'info' or 'all'", s)
}

// MaxHistory is the most turns ever sent to a backend.
const MaxHistory = session.MaxTurns

const DefaultSystemPrompt = `You are VibeCLI, a coding assistant running in the user's terminal.
You can inspect and change the project with the tools provided. Prefer reading files before
editing them, keep changes minimal and explain what you did.`

type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateExecutingTools
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateExecutingTools:
		return "executing_tools"
	}
	return "unknown"
}

// History is the read side of the conversation store.
type History interface {
	RecentTurns(limit int) []session.Turn
}

// Callbacks let a front end observe a turn. Every field is optional.
type Callbacks struct {
	// OnText receives assistant text as soon as it arrives.
	OnText func(text string)
	// OnToolCall is called for every assembled invocation before anything runs.
	OnToolCall func(inv tools.Invocation)
	// OnToolResult is called in request order once every invocation has finished.
	OnToolResult func(inv tools.Invocation, res tools.Result)
	// ShouldExecuteTool approves destructive invocations in ModePrompt.
	// A nil func denies them.
	ShouldExecuteTool func(inv tools.Invocation) bool
	OnWarning         func(warning string)
}

// TurnResult is everything a completed turn produced.
type TurnResult struct {
	Message     string
	Text        string
	Invocations []tools.Invocation
	// Results[i] belongs to Invocations[i].
	Results []tools.Result
}

type Options struct {
	Backend      string
	Adapters     map[string]llm.Adapter
	Executor     *tools.Executor
	History      History
	SystemPrompt string
	WorkDir      string
	HistoryLimit int
	Mode         Mode
}

// Orchestrator drives one conversation: it streams a turn from the selected
// backend, assembles the tool calls it announces and runs them.
// At most one turn is active at a time.
type Orchestrator struct {
	backend      string
	adapters     map[string]llm.Adapter
	executor     *tools.Executor
	history      History
	systemPrompt string
	workDir      string
	historyLimit int
	mode         Mode

	state atomic.Int32
}

func New(opts Options) *Orchestrator {
	limit := opts.HistoryLimit
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	executor := opts.Executor
	if executor == nil {
		executor = tools.NewExecutor(tools.NewRegistry(), 0, 0)
	}
	return &Orchestrator{
		backend:      opts.Backend,
		adapters:     opts.Adapters,
		executor:     executor,
		history:      opts.History,
		systemPrompt: opts.SystemPrompt,
		workDir:      opts.WorkDir,
		historyLimit: limit,
		mode:         mode,
	}
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) Mode() Mode { return o.mode }

func (o *Orchestrator) Registry() *tools.Registry { return o.executor.Registry() }

// RunTurn sends message to the backend and runs every tool call it requests.
//
// A transport failure returns *errors.StreamFailure carrying the text received so
// far and runs no tools. Tool failures never fail the turn; they are reported in
// TurnResult.Results. A second call while a turn is active fails with
// errors.ErrTurnInProgress.
func (o *Orchestrator) RunTurn(ctx context.Context, message string, cb Callbacks) (*TurnResult, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return nil, errors.ErrTurnInProgress
	}
	defer o.state.Store(int32(StateIdle))

	if strings.TrimSpace(message) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidArguments, "empty message")
	}
	adapter, ok := o.adapters[o.backend]
	if !ok || adapter == nil {
		return nil, errors.Wrapf(errors.ErrUnsupportedBackend, "'%s'", o.backend)
	}

	req := llm.Request{
		System:  o.buildSystemPrompt(),
		History: o.recentHistory(),
		Message: message,
		Tools:   o.executor.Registry().Specs(),
	}
	log.Debug().Str("backend", o.backend).Int("history", len(req.History)).Int("tools", len(req.Tools)).Msg("Starting turn")

	stream, err := adapter.Stream(ctx, req)
	if err != nil {
		return nil, &errors.StreamFailure{Err: err}
	}
	text, calls, err := o.consume(ctx, stream, cb)
	if err != nil {
		log.Debug().Err(err).Int("partial", len(text)).Msg("Stream failed")
		return nil, &errors.StreamFailure{PartialText: text, Err: err}
	}

	result := &TurnResult{Message: message, Text: text}
	if len(calls) == 0 {
		return result, nil
	}

	o.state.Store(int32(StateExecutingTools))
	results, err := o.execute(ctx, calls, cb)
	if err != nil {
		return nil, err
	}
	for _, c := range calls {
		result.Invocations = append(result.Invocations, c.inv)
	}
	result.Results = results
	return result, nil
}

// consume reads the stream to its end. It returns the concatenated text and the
// assembled calls, or the stream failure.
func (o *Orchestrator) consume(ctx context.Context, stream llm.EventStream, cb Callbacks) (string, []assembledCall, error) {
	defer stream.Close()

	var text strings.Builder
	acc := newAccumulator()
	var refs []llm.ToolCallRef
	complete := false

	for stream.Next() {
		ev := stream.Current()
		switch ev.Kind {
		case llm.EventText:
			text.WriteString(ev.Text)
			if cb.OnText != nil {
				cb.OnText(ev.Text)
			}
		case llm.EventToolCallFragment:
			acc.add(ev)
		case llm.EventTurnComplete:
			refs = ev.ToolCalls
			complete = true
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), nil, err
	}
	if err := ctx.Err(); err != nil {
		return text.String(), nil, err
	}
	if !complete {
		return text.String(), nil, errors.New("stream ended without completing the turn")
	}
	return text.String(), acc.finalize(refs, func(w string) { o.warn(cb, w) }), nil
}

// execute asks for approval where needed, then runs the approved calls concurrently.
func (o *Orchestrator) execute(ctx context.Context, calls []assembledCall, cb Callbacks) ([]tools.Result, error) {
	registry := o.executor.Registry()
	results := make([]tools.Result, len(calls))
	var runnable []tools.Invocation
	var slots []int

	for i, c := range calls {
		if cb.OnToolCall != nil {
			cb.OnToolCall(c.inv)
		}
		if c.err != nil {
			results[i] = tools.Result{InvocationID: c.inv.ID, Name: c.inv.Name, Err: c.err}
			continue
		}
		if o.mode == ModePrompt && registry.IsDestructive(c.inv.Name, c.inv.Args) {
			if cb.ShouldExecuteTool == nil || !cb.ShouldExecuteTool(c.inv) {
				results[i] = tools.Result{
					InvocationID: c.inv.ID,
					Name:         c.inv.Name,
					Err:          errors.Wrapf(errors.ErrToolDenied, "'%s'", c.inv.Name),
				}
				continue
			}
		}
		runnable = append(runnable, c.inv)
		slots = append(slots, i)
	}

	done := make(chan []tools.Result, 1)
	go func() { done <- o.executor.ExecuteAll(ctx, runnable) }()
	select {
	case rs := <-done:
		for j, r := range rs {
			results[slots[j]] = r
		}
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "turn cancelled while executing tools")
	}

	if cb.OnToolResult != nil {
		for i, c := range calls {
			cb.OnToolResult(c.inv, results[i])
		}
	}
	return results, nil
}

func (o *Orchestrator) recentHistory() []session.Turn {
	if o.history == nil {
		return nil
	}
	turns := o.history.RecentTurns(o.historyLimit)
	if len(turns) > o.historyLimit {
		turns = turns[len(turns)-o.historyLimit:]
	}
	return turns
}

func (o *Orchestrator) buildSystemPrompt() string {
	prompt := o.systemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if o.workDir != "" {
		prompt += fmt.Sprintf("\n\nProject directory: %s\nAll tool paths are relative to it.", o.workDir)
	}
	return prompt
}

func (o *Orchestrator) warn(cb Callbacks, warning string) {
	log.Warn().Msg(warning)
	if cb.OnWarning != nil {
		cb.OnWarning(warning)
	}
}
