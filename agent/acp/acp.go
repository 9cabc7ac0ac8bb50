package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Stop reasons reported in session/prompt responses.
const (
	StopEndTurn   = "end_turn"
	StopCancelled = "cancelled"
)

// maxResourceSize bounds the inline contents of a resource_link block.
const maxResourceSize = 50000

// SessionFactory builds the orchestrator that serves a session backed by store.
type SessionFactory func(store *session.Store) (*agent.Orchestrator, error)

// Run serves the Agent Client Protocol over newline-delimited JSON-RPC until in is exhausted.
// Supported methods are initialize, session/new, session/load, session/prompt and the
// session/cancel notification. Nothing but JSON-RPC messages is written to out.
func Run(ctx context.Context, factory SessionFactory, in io.Reader, out io.Writer) error {
	s := &server{
		ctx:      ctx,
		factory:  factory,
		sessions: make(map[string]*acpSession),
		out:      bufio.NewWriter(out),
	}
	// Prompts run concurrently with the read loop so that session/cancel can reach them.
	var wg conc.WaitGroup
	defer wg.Wait()

	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			s.dispatch(&wg, line)
		}
		if err == io.EOF {
			log.Debug().Msg("ACP client closed the connection")
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "ACP read error")
		}
	}
}

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// acpSession is one client session: a persisted conversation plus the orchestrator serving it.
type acpSession struct {
	id    string
	dir   string
	store *session.Store
	orch  *agent.Orchestrator

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// track registers cancel for the prompts of this session until release is called.
func (a *acpSession) track(cancel context.CancelFunc) (release func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancels == nil {
		a.cancels = make(map[int]context.CancelFunc)
	}
	id := a.nextID
	a.nextID++
	a.cancels[id] = cancel
	return func() {
		a.mu.Lock()
		delete(a.cancels, id)
		a.mu.Unlock()
	}
}

// cancelPrompt cancels every prompt running on the session.
func (a *acpSession) cancelPrompt() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cancel := range a.cancels {
		cancel()
	}
	return len(a.cancels) > 0
}

type server struct {
	ctx     context.Context
	factory SessionFactory

	// openMu serializes session creation so a directory never gets two orchestrators.
	openMu     sync.Mutex
	sessionsMu sync.Mutex
	sessions   map[string]*acpSession

	writeMu sync.Mutex
	out     *bufio.Writer
}

func (s *server) dispatch(wg *conc.WaitGroup, payload []byte) {
	var req jsonrpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Err(err).Msg("Malformed ACP message")
		s.writeError(nil, codeParseError, "Parse error", nil)
		return
	}
	log.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("ACP request")

	switch req.Method {
	case "initialize":
		s.handleInitialize(&req)
	case "session/new":
		s.handleSessionNew(&req)
	case "session/load":
		s.handleSessionLoad(&req)
	case "session/prompt":
		wg.Go(func() { s.handleSessionPrompt(&req) })
	case "session/cancel":
		s.handleSessionCancel(&req)
	default:
		if req.ID != nil {
			s.writeError(req.ID, codeMethodNotFound, "Method not found", req.Method)
		}
	}
}

func (s *server) writeJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialize ACP message")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.out.Write(data)
	s.out.WriteByte('\n')
	if err := s.out.Flush(); err != nil {
		log.Error().Err(err).Msg("Failed to write ACP message")
	}
}

func (s *server) writeResult(id any, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, codeInternalError, "Internal error", err.Error())
		return
	}
	s.writeJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func (s *server) writeError(id any, code int, msg string, data any) {
	s.writeJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

func (s *server) notify(sessionID string, update map[string]any) {
	s.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "session/update",
		"params": map[string]any{
			"sessionId": sessionID,
			"update":    update,
		},
	})
}

func textUpdate(kind, text string) map[string]any {
	return map[string]any{
		"sessionUpdate": kind,
		"content":       map[string]any{"type": "text", "text": text},
	}
}

// decodeParams unmarshals the request params into v and answers the request on failure.
func (s *server) decodeParams(req *jsonrpcRequest, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return false
	}
	return true
}

func (s *server) lookup(id string) (*acpSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *server) handleInitialize(req *jsonrpcRequest) {
	s.writeResult(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

type sessionParams struct {
	SessionID  string          `json:"sessionId"`
	Cwd        string          `json:"cwd"`
	McpServers json.RawMessage `json:"mcpServers,omitempty"`
}

// open returns the session serving the context stored under cwd, building and registering
// it on first use. Every client session for one directory shares its orchestrator, so turns
// on that conversation never overlap.
func (s *server) open(cwd string) (*acpSession, error) {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cwd %s", cwd)
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if sess, ok := s.lookupDir(dir); ok {
		return sess, nil
	}
	store, err := session.Open(dir)
	if err != nil {
		return nil, err
	}
	if sess, ok := s.lookup(store.ID()); ok {
		return sess, nil
	}
	orch, err := s.factory(store)
	if err != nil {
		return nil, err
	}
	sess := &acpSession{id: store.ID(), dir: dir, store: store, orch: orch}
	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()
	return sess, nil
}

func (s *server) lookupDir(dir string) (*acpSession, bool) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for _, sess := range s.sessions {
		if sess.dir == dir {
			return sess, true
		}
	}
	return nil, false
}

func (s *server) handleSessionNew(req *jsonrpcRequest) {
	var p sessionParams
	if !s.decodeParams(req, &p) {
		return
	}
	if p.Cwd == "" {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", "cwd is required")
		return
	}

	sess, err := s.open(p.Cwd)
	if err != nil {
		log.Error().Err(err).Str("cwd", p.Cwd).Msg("Failed to create ACP session")
		s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	log.Info().Str("session", sess.id).Str("cwd", p.Cwd).Msg("ACP session created")
	s.writeResult(req.ID, map[string]any{"sessionId": sess.id})
}

// handleSessionLoad reopens the context persisted under cwd and replays it as session/update
// notifications. User turns become user_message_chunk, assistant turns agent_message_chunk and
// system turns (tool results) agent_thought_chunk.
func (s *server) handleSessionLoad(req *jsonrpcRequest) {
	var p sessionParams
	if !s.decodeParams(req, &p) {
		return
	}
	if p.Cwd == "" || p.SessionID == "" {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", "sessionId and cwd are required")
		return
	}

	sess, ok := s.lookup(p.SessionID)
	if !ok {
		store, err := session.Open(p.Cwd)
		if err != nil {
			s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
			return
		}
		if store.ID() != p.SessionID {
			s.writeError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
			return
		}
		if sess, err = s.open(p.Cwd); err != nil {
			s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
			return
		}
	}

	for _, turn := range sess.store.Turns() {
		switch turn.Role {
		case session.RoleUser:
			s.notify(sess.id, textUpdate("user_message_chunk", turn.Content))
		case session.RoleAssistant:
			s.notify(sess.id, textUpdate("agent_message_chunk", turn.Content))
		case session.RoleSystem:
			s.notify(sess.id, textUpdate("agent_thought_chunk", turn.Content))
		}
	}
	s.writeResult(req.ID, nil)
}

// contentBlock is a prompt content block. Only text and resource_link are understood.
type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

type promptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []contentBlock `json:"prompt"`
}

// handleSessionPrompt runs one turn for the session, streaming text and tool activity as
// session/update notifications, and answers with the stop reason once the turn is recorded.
func (s *server) handleSessionPrompt(req *jsonrpcRequest) {
	var p promptParams
	if !s.decodeParams(req, &p) {
		return
	}
	sess, ok := s.lookup(p.SessionID)
	if !ok {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}
	message := extractUserText(p.Prompt)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	defer sess.track(cancel)()

	res, err := sess.orch.RunTurn(ctx, message, s.callbacks(sess.id))
	if errors.Is(err, errors.ErrTurnInProgress) {
		s.writeError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	agent.Record(sess.store, message, res, err)
	if saveErr := sess.store.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Str("session", sess.id).Msg("Failed to save context")
	}

	switch {
	case err == nil:
		s.writeResult(req.ID, map[string]any{"stopReason": StopEndTurn})
	case ctx.Err() != nil:
		s.writeResult(req.ID, map[string]any{"stopReason": StopCancelled})
	default:
		log.Error().Err(err).Str("session", sess.id).Msg("Turn failed")
		s.writeError(req.ID, codeInternalError, "Internal error", err.Error())
	}
}

func (s *server) callbacks(sessionID string) agent.Callbacks {
	return agent.Callbacks{
		OnText: func(text string) {
			s.notify(sessionID, textUpdate("agent_message_chunk", text))
		},
		OnToolCall: func(inv tools.Invocation) {
			s.notify(sessionID, map[string]any{
				"sessionUpdate": "tool_call",
				"toolCallId":    inv.ID,
				"title":         inv.Name,
				"status":        "in_progress",
				"rawInput":      inv.Args,
			})
		},
		OnToolResult: func(inv tools.Invocation, res tools.Result) {
			status, text := "completed", res.Output
			if !res.OK() {
				status, text = "failed", res.Reason()
			}
			s.notify(sessionID, map[string]any{
				"sessionUpdate": "tool_call_update",
				"toolCallId":    inv.ID,
				"status":        status,
				"content": []any{map[string]any{
					"type":    "content",
					"content": map[string]any{"type": "text", "text": text},
				}},
			})
		},
		// The client has no approval channel here.
		ShouldExecuteTool: func(tools.Invocation) bool { return true },
		OnWarning: func(warning string) {
			log.Warn().Str("session", sessionID).Msg(warning)
		},
	}
}

func (s *server) handleSessionCancel(req *jsonrpcRequest) {
	var p sessionParams
	if !s.decodeParams(req, &p) {
		return
	}
	sess, ok := s.lookup(p.SessionID)
	if !ok {
		log.Warn().Str("session", p.SessionID).Msg("Cancel for unknown session")
		return
	}
	if sess.cancelPrompt() {
		log.Info().Str("session", p.SessionID).Msg("Prompt cancelled")
	}
}

// readFileFromURI reads the file behind a file:// URI.
func readFileFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if u.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", u.Scheme)
	}
	content, err := os.ReadFile(u.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

// extractUserText flattens prompt blocks into one message. Resource links to local files are
// inlined with their metadata.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			parts = append(parts, describeResource(b))
		default:
			log.Debug().Str("type", b.Type).Msg("Ignoring unsupported content block")
		}
	}
	return strings.Join(parts, "\n")
}

func describeResource(b contentBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
	if b.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "URI: %s\n", b.URI)
	if b.MimeType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
	}
	if b.Size != nil {
		fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
	}

	if strings.HasPrefix(b.URI, "file://") {
		content, err := readFileFromURI(b.URI)
		if err != nil {
			fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
		} else {
			if len(content) > maxResourceSize {
				content = tools.TruncateUTF8(content, maxResourceSize) + "\n\n[... truncated ...]"
			}
			fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
		}
	} else {
		sb.WriteString("\n[External resource - content not available]\n")
	}
	sb.WriteString("=== End Resource ===\n")
	return sb.String()
}
