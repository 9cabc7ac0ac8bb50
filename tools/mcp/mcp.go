// Package mcp exposes the tools of external Model Context Protocol servers
// as registry capabilities.
package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/tools"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*Tool
}

// Start launches the server subprocess, connects and discovers its tools.
func Start(ctx context.Context, server config.MCPServer) (*Client, error) {
	cmd := exec.Command(server.Command, server.Args...)
	cmd.Stderr = os.Stderr
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "vibecli", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", server.Name)
	}

	c := &Client{Name: server.Name, cmd: cmd, conn: conn}
	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", server.Name)
		}
		for _, t := range list.Tools {
			schema, err := convertSchema(t.InputSchema)
			if err != nil {
				log.Warn().Str("server", server.Name).Str("tool", t.Name).Err(err).Msg("Ignoring unreadable input schema")
				schema = tools.Object(nil)
			}
			c.tools = append(c.tools, &Tool{
				name:        t.Name,
				description: t.Description,
				params:      schema,
				caller:      conn,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	log.Info().Str("server", server.Name).Int("tools", len(c.tools)).Msg("Initialized MCP client")
	return c, nil
}

// convertSchema round-trips the SDK schema through JSON into tools.Schema.
func convertSchema(in any) (*tools.Schema, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return tools.Object(nil), nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return tools.SchemaFromMap(m)
}

func (c *Client) Tools() []*Tool { return c.tools }

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		log.Debug().Str("server", c.Name).Msg("Terminating MCP server")
		return c.cmd.Process.Kill()
	}
	return nil
}

// RegisterServers starts every configured server and registers its tools.
// Servers that fail to start are logged and skipped. The returned clients
// must be stopped by the caller.
func RegisterServers(ctx context.Context, registry *tools.Registry, servers []config.MCPServer) []*Client {
	var clients []*Client
	for _, server := range servers {
		c, err := Start(ctx, server)
		if err != nil {
			log.Warn().Str("server", server.Name).Err(err).Msg("MCP server unavailable")
			continue
		}
		clients = append(clients, c)
		for _, t := range c.Tools() {
			if err := registry.Register(t); err != nil {
				log.Warn().Str("server", server.Name).Str("tool", t.Name()).Err(err).Msg("Skipping MCP tool")
			}
		}
	}
	return clients
}

type toolCaller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// Tool is a capability served by an external MCP server.
type Tool struct {
	name        string
	description string
	params      *tools.Schema
	caller      toolCaller
}

func (t *Tool) Name() string              { return t.name }
func (t *Tool) Description() string       { return t.description }
func (t *Tool) Parameters() *tools.Schema { return t.params }

// IsDestructive is always true: nothing is known about what an external tool does.
func (t *Tool) IsDestructive(map[string]interface{}) bool { return true }

// Execute sends the arguments to the MCP server and concatenates the text content of the reply.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.caller.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.name)
	}
	var sb strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("tool '%s' reported an error: %s", t.name, sb.String())
	}
	return sb.String(), nil
}
