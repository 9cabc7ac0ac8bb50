package tools

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

// Invocation is a fully assembled request to run a tool.
type Invocation struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Result is the outcome of one invocation. Exactly one of Output or Err is meaningful.
type Result struct {
	InvocationID string
	Name         string
	Output       string
	Err          error
	Truncated    bool
	Duration     time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

// Reason renders the failure for display and for feeding back to the model.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Executor runs invocations against a registry with a per-invocation timeout.
type Executor struct {
	registry      *Registry
	timeout       time.Duration
	maxOutputSize int
}

// NewExecutor returns an executor. A zero timeout or output size disables the limit.
func NewExecutor(registry *Registry, timeout time.Duration, maxOutputSize int) *Executor {
	return &Executor{registry: registry, timeout: timeout, maxOutputSize: maxOutputSize}
}

func (e *Executor) Registry() *Registry { return e.registry }

// Execute runs a single invocation. It never panics and never returns without a result:
// tool panics and timeouts become *errors.ExecutionError.
func (e *Executor) Execute(ctx context.Context, inv Invocation) Result {
	start := time.Now()
	res := Result{InvocationID: inv.ID, Name: inv.Name}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		var pc panics.Catcher
		pc.Try(func() { o.out, o.err = e.registry.Invoke(ctx, inv.Name, inv.Args) })
		if r := pc.Recovered(); r != nil {
			o.err = &errors.ExecutionError{Capability: inv.Name, Cause: fmt.Errorf("panic: %v", r.Value)}
			log.Error().Str("tool", inv.Name).Str("stack", string(r.Stack)).Msg("Tool panicked")
		}
		done <- o
	}()

	select {
	case o := <-done:
		res.Output, res.Err = o.out, o.err
	case <-ctx.Done():
		// The tool ignored cancellation; its goroutine finishes on its own.
		res.Err = &errors.ExecutionError{Capability: inv.Name, Cause: ctx.Err()}
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		log.Debug().Str("tool", inv.Name).Str("id", inv.ID).Err(res.Err).Msg("Tool failed")
		return res
	}
	res.Output, res.Truncated = e.truncateOutput(res.Output)
	log.Debug().
		Str("tool", inv.Name).
		Str("id", inv.ID).
		Dur("duration", res.Duration).
		Bool("truncated", res.Truncated).
		Msg("Tool executed")
	return res
}

// ExecuteAll runs the invocations concurrently and returns their results in request order.
func (e *Executor) ExecuteAll(ctx context.Context, invs []Invocation) []Result {
	results := make([]Result, len(invs))
	var g errgroup.Group
	for i, inv := range invs {
		g.Go(func() error {
			results[i] = e.Execute(ctx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) truncateOutput(out string) (string, bool) {
	if e.maxOutputSize <= 0 || len(out) <= e.maxOutputSize {
		return out, false
	}
	log.Warn().Int("original_size", len(out)).Int("truncated", e.maxOutputSize).Msg("Output truncated")
	return TruncateUTF8(out, e.maxOutputSize) + "\n... [output truncated]", true
}

// TruncateUTF8 returns the longest prefix of s that fits in n bytes without splitting a rune.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
