package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	got    *mcpsdk.CallToolParams
	result *mcpsdk.CallToolResult
	err    error
}

func (f *fakeCaller) CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	f.got = params
	return f.result, f.err
}

func TestToolExecute(t *testing.T) {
	caller := &fakeCaller{result: &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "hello "}, &mcpsdk.TextContent{Text: "world"}},
	}}
	tool := &Tool{name: "greet", params: tools.Object(nil), caller: caller}

	out, err := tool.Execute(context.Background(), map[string]interface{}{"who": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "greet", caller.got.Name)
	assert.True(t, tool.IsDestructive(nil))
}

func TestToolExecuteErrors(t *testing.T) {
	tool := &Tool{name: "greet", caller: &fakeCaller{err: fmt.Errorf("closed pipe")}}
	_, err := tool.Execute(context.Background(), nil)
	assert.ErrorContains(t, err, "closed pipe")

	tool.caller = &fakeCaller{result: &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "no such user"}},
	}}
	_, err = tool.Execute(context.Background(), nil)
	assert.ErrorContains(t, err, "no such user")
}

func TestToolRegistersWithConvertedSchema(t *testing.T) {
	schema, err := convertSchema(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		"required":   []string{"query"},
	})
	require.NoError(t, err)

	r := tools.NewRegistry()
	require.NoError(t, r.Register(&Tool{name: "search", params: schema, caller: &fakeCaller{
		result: &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "found"}}},
	}}))

	_, err = r.Invoke(context.Background(), "search", map[string]interface{}{})
	assert.Error(t, err)
	out, err := r.Invoke(context.Background(), "search", map[string]interface{}{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, "found", out)

	empty, err := convertSchema(nil)
	require.NoError(t, err)
	assert.Equal(t, "object", empty.Type)
}

func TestRegisterServersSkipsBrokenServer(t *testing.T) {
	r := tools.NewRegistry()
	clients := RegisterServers(context.Background(), r, []config.MCPServer{
		{Name: "ghost", Command: "/nonexistent/mcp-server"},
	})
	assert.Empty(t, clients)
	assert.Equal(t, 0, r.Len())
}
