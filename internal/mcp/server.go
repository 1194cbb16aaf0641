package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/port"
	"github.com/arturoeanton/go-code-retriever/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes code retrieval tools to external AI agents.
type Server struct {
	ragService *service.RAGService
	port       string
	httpServer *http.Server
}

// NewServer creates a new MCP server. Shutdown may be called before or
// concurrently with Start.
func NewServer(ragService *service.RAGService, port string) *Server {
	s := &Server{
		ragService: ragService,
		port:       port,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// invalidParamsError marks a tool call whose arguments were rejected.
type invalidParamsError struct{ err error }

func (e invalidParamsError) Error() string { return e.err.Error() }
func (e invalidParamsError) Unwrap() error { return e.err }

// Handler returns the HTTP handler serving the MCP endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	return mux
}

// Start begins the MCP server on the configured port. It blocks until the
// server is shut down, and returns at once if Shutdown already ran.
func (s *Server) Start() error {
	slog.Info("MCP server starting", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and keeps a later Start from listening.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "codelens-retrieval",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	if err != nil {
		slog.Warn("MCP tool call failed", "error", err)
		writeError(w, req.ID, errorCode(err), err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func errorCode(err error) int {
	var ip invalidParamsError
	switch {
	case errors.As(err, &ip),
		errors.Is(err, port.ErrInvalidSession),
		errors.Is(err, port.ErrInvalidArgument):
		return codeInvalidParams
	default:
		return codeInternalError
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	tools := []Tool{
		{
			Name:        "retrieve_code",
			Description: "Retrieve the code chunks of an indexed session most relevant to a question",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "description": "Session ID returned by upload"},
					"query": {"type": "string", "description": "Natural language question about the code"},
					"max_chunks": {"type": "integer", "description": "Maximum chunks to return (default 8)"}
				},
				"required": ["session_id", "query"]
			}`),
		},
		{
			Name:        "session_stats",
			Description: "Count the chunks of a session by chunk type",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session_id": {"type": "string", "description": "Session ID"}
				},
				"required": ["session_id"]
			}`),
		},
		{
			Name:        "list_sessions",
			Description: "List indexed sessions, oldest first",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func textContent(text string) []map[string]interface{} {
	return []map[string]interface{}{
		{"type": "text", "text": text},
	}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, invalidParamsError{fmt.Errorf("invalid params: %w", err)}
	}

	switch req.Name {
	case "retrieve_code":
		var args struct {
			SessionID string `json:"session_id"`
			Query     string `json:"query"`
			MaxChunks int    `json:"max_chunks"`
		}
		if err := unmarshalArgs(req.Arguments, &args); err != nil {
			return nil, err
		}

		chunks, err := s.ragService.RetrieveRelevantChunks(ctx, args.Query, args.SessionID, args.MaxChunks)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"content": textContent(s.ragService.FormatContextForAI(chunks, args.Query)),
			"sources": chunks,
			"summary": s.ragService.ContextSummary(chunks),
		}, nil

	case "session_stats":
		var args struct {
			SessionID string `json:"session_id"`
		}
		if err := unmarshalArgs(req.Arguments, &args); err != nil {
			return nil, err
		}

		stats, err := s.ragService.GetSessionStats(ctx, args.SessionID)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Session %s: %d chunks", stats.SessionID, stats.TotalChunks)
		types := make([]string, 0, len(stats.FileTypes))
		for t := range stats.FileTypes {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "\n- %s: %d", t, stats.FileTypes[domain.ChunkType(t)])
		}
		return map[string]interface{}{
			"content": textContent(b.String()),
			"stats":   stats,
		}, nil

	case "list_sessions":
		sessions, err := s.ragService.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"content":  textContent(fmt.Sprintf("%d indexed sessions", len(sessions))),
			"sessions": sessions,
		}, nil

	default:
		return nil, invalidParamsError{fmt.Errorf("unknown tool: %s", req.Name)}
	}
}

func unmarshalArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidParamsError{fmt.Errorf("invalid arguments: %w", err)}
	}
	return nil
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
