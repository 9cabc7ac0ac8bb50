package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/llm"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes text" }
func (echoTool) Parameters() *tools.Schema {
	return tools.Object(map[string]*tools.Schema{"text": tools.String("text to echo")}, "text")
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return args["text"].(string), nil
}

// waitTool blocks until its context is cancelled.
type waitTool struct{}

func (waitTool) Name() string              { return "wait" }
func (waitTool) Description() string       { return "waits forever" }
func (waitTool) Parameters() *tools.Schema { return nil }
func (waitTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func factoryFor(adapter llm.Adapter, ts ...tools.Tool) SessionFactory {
	return func(store *session.Store) (*agent.Orchestrator, error) {
		r := tools.NewRegistry()
		for _, tool := range ts {
			if err := r.Register(tool); err != nil {
				return nil, err
			}
		}
		return agent.New(agent.Options{
			Backend:  "test",
			Adapters: map[string]llm.Adapter{"test": adapter},
			Executor: tools.NewExecutor(r, 10*time.Second, 0),
			History:  store,
			WorkDir:  store.ProjectDir(),
		}), nil
	}
}

// client drives a server running over in-memory pipes.
type client struct {
	t     *testing.T
	in    *io.PipeWriter
	lines chan map[string]any
}

func start(t *testing.T, factory SessionFactory) *client {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), factory, inR, outW)
		outW.Close()
	}()

	c := &client{t: t, in: inW, lines: make(chan map[string]any, 64)}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(outR)
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		for scanner.Scan() {
			var msg map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				continue
			}
			c.lines <- msg
		}
	}()

	t.Cleanup(func() {
		inW.Close()
		go func() {
			for range c.lines {
			}
		}()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return c
}

func (c *client) send(id any, method string, params any) {
	c.t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method, "params": params}
	if id != nil {
		msg["id"] = id
	}
	data, err := json.Marshal(msg)
	require.NoError(c.t, err)
	_, err = c.in.Write(append(data, '\n'))
	require.NoError(c.t, err)
}

func (c *client) sendRaw(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.in, line+"\n")
	require.NoError(c.t, err)
}

func (c *client) next() map[string]any {
	c.t.Helper()
	select {
	case msg, ok := <-c.lines:
		require.True(c.t, ok, "server closed its output")
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for a message")
		return nil
	}
}

// collect returns the notifications received before the response to id, and the response.
func (c *client) collect(id float64) ([]map[string]any, map[string]any) {
	c.t.Helper()
	var updates []map[string]any
	for {
		msg := c.next()
		if msg["method"] == "session/update" {
			updates = append(updates, msg["params"].(map[string]any)["update"].(map[string]any))
			continue
		}
		if msg["id"] == id {
			return updates, msg
		}
	}
}

func (c *client) newSession(cwd string) string {
	c.t.Helper()
	c.send(100, "session/new", map[string]any{"cwd": cwd, "mcpServers": []any{}})
	_, resp := c.collect(100)
	require.Nil(c.t, resp["error"])
	return resp["result"].(map[string]any)["sessionId"].(string)
}

func TestInitialize(t *testing.T) {
	c := start(t, factoryFor(&llm.MockAdapter{}))
	c.send(0, "initialize", map[string]any{
		"protocolVersion":    1,
		"clientCapabilities": map[string]any{"fs": map[string]any{"readTextFile": true}},
	})

	resp := c.next()
	assert.Equal(t, float64(0), resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, float64(1), result["protocolVersion"])
	caps := result["agentCapabilities"].(map[string]any)
	assert.Equal(t, true, caps["loadSession"])
}

func TestProtocolErrors(t *testing.T) {
	c := start(t, factoryFor(&llm.MockAdapter{}))

	c.sendRaw("this is not json")
	resp := c.next()
	assert.Equal(t, float64(codeParseError), resp["error"].(map[string]any)["code"])

	c.send(1, "fs/unknown", map[string]any{})
	resp = c.next()
	assert.Equal(t, float64(1), resp["id"])
	assert.Equal(t, float64(codeMethodNotFound), resp["error"].(map[string]any)["code"])

	c.send(2, "session/new", map[string]any{})
	resp = c.next()
	assert.Equal(t, float64(codeInvalidParams), resp["error"].(map[string]any)["code"])

	c.send(3, "session/prompt", map[string]any{
		"sessionId": "nope",
		"prompt":    []any{map[string]any{"type": "text", "text": "hi"}},
	})
	resp = c.next()
	assert.Equal(t, float64(codeInvalidParams), resp["error"].(map[string]any)["code"])
}

func TestPromptStreamsTextAndPersists(t *testing.T) {
	cwd := t.TempDir()
	c := start(t, factoryFor(&llm.MockAdapter{}))
	sid := c.newSession(cwd)

	c.send(1, "session/prompt", map[string]any{
		"sessionId": sid,
		"prompt":    []any{map[string]any{"type": "text", "text": "hello"}},
	})
	updates, resp := c.collect(1)
	require.Nil(t, resp["error"])
	assert.Equal(t, StopEndTurn, resp["result"].(map[string]any)["stopReason"])

	var text strings.Builder
	for _, u := range updates {
		require.Equal(t, "agent_message_chunk", u["sessionUpdate"])
		text.WriteString(u["content"].(map[string]any)["text"].(string))
	}
	assert.Equal(t, "I am a mock LLM. You said: 'hello'. I cannot use tools.", text.String())

	store, err := session.Open(cwd)
	require.NoError(t, err)
	assert.Equal(t, sid, store.ID())
	turns := store.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
}

func TestPromptReportsToolCalls(t *testing.T) {
	adapter := &llm.ScriptedAdapter{Scripts: [][]llm.Event{{
		llm.Text("Echoing."),
		llm.Fragment("call_1", "echo", `{"te`),
		llm.Fragment("call_1", "", `xt":"hi"}`),
	}}}
	c := start(t, factoryFor(adapter, echoTool{}))
	sid := c.newSession(t.TempDir())

	c.send(1, "session/prompt", map[string]any{
		"sessionId": sid,
		"prompt":    []any{map[string]any{"type": "text", "text": "echo hi"}},
	})
	updates, resp := c.collect(1)
	assert.Equal(t, StopEndTurn, resp["result"].(map[string]any)["stopReason"])

	require.Len(t, updates, 3)
	assert.Equal(t, "agent_message_chunk", updates[0]["sessionUpdate"])

	assert.Equal(t, "tool_call", updates[1]["sessionUpdate"])
	assert.Equal(t, "call_1", updates[1]["toolCallId"])
	assert.Equal(t, "echo", updates[1]["title"])
	assert.Equal(t, map[string]any{"text": "hi"}, updates[1]["rawInput"])

	assert.Equal(t, "tool_call_update", updates[2]["sessionUpdate"])
	assert.Equal(t, "completed", updates[2]["status"])
	content := updates[2]["content"].([]any)[0].(map[string]any)["content"].(map[string]any)
	assert.Equal(t, "hi", content["text"])
}

func TestPromptReportsFailedTool(t *testing.T) {
	adapter := &llm.ScriptedAdapter{Scripts: [][]llm.Event{{
		llm.Fragment("call_1", "missing_tool", `{}`),
	}}}
	c := start(t, factoryFor(adapter))
	sid := c.newSession(t.TempDir())

	c.send(1, "session/prompt", map[string]any{
		"sessionId": sid,
		"prompt":    []any{map[string]any{"type": "text", "text": "go"}},
	})
	updates, resp := c.collect(1)
	assert.Equal(t, StopEndTurn, resp["result"].(map[string]any)["stopReason"])
	require.Len(t, updates, 2)
	assert.Equal(t, "failed", updates[1]["status"])
}

func TestSessionCancelStopsPrompt(t *testing.T) {
	adapter := &llm.ScriptedAdapter{Scripts: [][]llm.Event{{
		llm.Fragment("call_1", "wait", `{}`),
	}}}
	c := start(t, factoryFor(adapter, waitTool{}))
	sid := c.newSession(t.TempDir())

	c.send(1, "session/prompt", map[string]any{
		"sessionId": sid,
		"prompt":    []any{map[string]any{"type": "text", "text": "wait"}},
	})
	msg := c.next()
	require.Equal(t, "session/update", msg["method"])
	require.Equal(t, "tool_call", msg["params"].(map[string]any)["update"].(map[string]any)["sessionUpdate"])

	c.send(nil, "session/cancel", map[string]any{"sessionId": sid})
	_, resp := c.collect(1)
	require.Nil(t, resp["error"])
	assert.Equal(t, StopCancelled, resp["result"].(map[string]any)["stopReason"])
}

func TestSessionsForOneDirectoryShareTurns(t *testing.T) {
	adapter := &llm.ScriptedAdapter{Scripts: [][]llm.Event{{
		llm.Fragment("call_1", "wait", `{}`),
	}}}
	cwd := t.TempDir()
	c := start(t, factoryFor(adapter, waitTool{}))
	sid := c.newSession(cwd)

	c.send(1, "session/prompt", map[string]any{
		"sessionId": sid,
		"prompt":    []any{map[string]any{"type": "text", "text": "wait"}},
	})
	msg := c.next()
	require.Equal(t, "session/update", msg["method"])

	again := c.newSession(cwd + string(filepath.Separator))
	assert.Equal(t, sid, again)

	c.send(101, "session/load", map[string]any{"sessionId": sid, "cwd": cwd})
	_, resp := c.collect(101)
	require.Nil(t, resp["error"])

	c.send(2, "session/prompt", map[string]any{
		"sessionId": again,
		"prompt":    []any{map[string]any{"type": "text", "text": "second"}},
	})
	_, resp = c.collect(2)
	rpcErr, ok := resp["error"].(map[string]any)
	require.True(t, ok, "overlapping prompt must be rejected")
	assert.Equal(t, float64(codeInvalidParams), rpcErr["code"])
	assert.Equal(t, errors.ErrTurnInProgress.Error(), rpcErr["data"])

	c.send(nil, "session/cancel", map[string]any{"sessionId": sid})
	_, resp = c.collect(1)
	require.Nil(t, resp["error"])
	assert.Equal(t, StopCancelled, resp["result"].(map[string]any)["stopReason"])

	store, err := session.Open(cwd)
	require.NoError(t, err)
	for _, turn := range store.Turns() {
		assert.NotEqual(t, "second", turn.Content)
	}
}

func TestSessionLoadReplaysTurns(t *testing.T) {
	cwd := t.TempDir()
	store := session.New(cwd)
	store.AppendTurn(session.Turn{Role: session.RoleUser, Content: "question"})
	store.AppendTurn(session.Turn{Role: session.RoleAssistant, Content: "answer"})
	store.AppendTurn(session.Turn{Role: session.RoleSystem, Content: "Tool echo (call_1) returned:\nhi"})
	require.NoError(t, store.Save())

	c := start(t, factoryFor(&llm.MockAdapter{}))
	c.send(1, "session/load", map[string]any{"sessionId": store.ID(), "cwd": cwd})
	updates, resp := c.collect(1)
	require.Nil(t, resp["error"])
	assert.Contains(t, resp, "result")
	assert.Nil(t, resp["result"])

	require.Len(t, updates, 3)
	assert.Equal(t, "user_message_chunk", updates[0]["sessionUpdate"])
	assert.Equal(t, "agent_message_chunk", updates[1]["sessionUpdate"])
	assert.Equal(t, "agent_thought_chunk", updates[2]["sessionUpdate"])
	assert.Equal(t, "question", updates[0]["content"].(map[string]any)["text"])

	c.send(2, "session/load", map[string]any{"sessionId": "other", "cwd": cwd})
	_, resp = c.collect(2)
	assert.Equal(t, float64(codeInvalidParams), resp["error"].(map[string]any)["code"])
}

func TestLargeResourceIsTruncatedOnRuneBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"+strings.Repeat("è", maxResourceSize)), 0o644))

	got := describeResource(contentBlock{Type: "resource_link", URI: "file://" + path, Name: "big.txt"})
	assert.Contains(t, got, "[... truncated ...]")
	assert.True(t, utf8.ValidString(got))
}

func TestExtractUserText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("This is test file content"), 0o644))
	fileURI := "file://" + path

	tests := []struct {
		name     string
		blocks   []contentBlock
		expected string
		contains []string
	}{
		{
			name: "text only",
			blocks: []contentBlock{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: "  "},
				{Type: "text", Text: "World"},
			},
			expected: "Hello\nWorld",
		},
		{
			name: "local file",
			blocks: []contentBlock{
				{Type: "text", Text: "Check this file:"},
				{Type: "resource_link", URI: fileURI, Name: "test.txt", MimeType: "text/plain", Title: "Test File"},
			},
			contains: []string{
				"Check this file:",
				"=== Resource: test.txt ===",
				"Title: Test File",
				"Type: text/plain",
				"--- File Contents ---",
				"This is test file content",
			},
		},
		{
			name:     "missing local file",
			blocks:   []contentBlock{{Type: "resource_link", URI: "file://" + filepath.Join(dir, "nope"), Name: "nope"}},
			contains: []string{"[Error reading file:"},
		},
		{
			name:     "remote resource",
			blocks:   []contentBlock{{Type: "resource_link", URI: "https://example.com/doc.pdf", Name: "doc.pdf"}},
			contains: []string{"URI: https://example.com/doc.pdf", "[External resource - content not available]"},
		},
		{
			name:     "unsupported block",
			blocks:   []contentBlock{{Type: "image"}, {Type: "text", Text: "caption"}},
			expected: "caption",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractUserText(tt.blocks)
			if tt.expected != "" {
				assert.Equal(t, tt.expected, got)
			}
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}
