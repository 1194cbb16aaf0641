package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arturoeanton/go-code-retriever/internal/adapter/ai"
	"github.com/arturoeanton/go-code-retriever/internal/adapter/store"
	"github.com/arturoeanton/go-code-retriever/internal/domain"
	"github.com/arturoeanton/go-code-retriever/internal/service"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	emb, err := service.NewEmbeddingService(ai.NewHashingProvider(128), 0)
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}
	rag := service.NewRAGService(emb, s, service.NewRetrievalService(emb, s, service.RetrievalOptions{}), service.RAGOptions{})

	code := "function Counter() {\n  const [n, setN] = useState(0);\n  useEffect(() => { document.title = n; }, [n]);\n  return n;\n}"
	res, err := rag.IndexFiles(context.Background(), []domain.UploadedFile{
		{Name: "Counter.jsx", Content: b64(code)},
	}, "")
	if err != nil {
		t.Fatalf("IndexFiles: %v", err)
	}

	srv := httptest.NewServer(NewServer(rag, "0").Handler())
	t.Cleanup(srv.Close)
	return srv, res.SessionID
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func call(t *testing.T, srv *httptest.Server, method string, params any) JSONRPCResponse {
	t.Helper()
	body := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		body["params"] = params
	}
	data, _ := json.Marshal(body)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var out JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := call(t, srv, "tools/list", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	if got := strings.Join(names, ","); got != "retrieve_code,session_stats,list_sessions" {
		t.Fatalf("tools = %s", got)
	}
}

func TestRetrieveCodeTool(t *testing.T) {
	srv, sid := newTestServer(t)
	resp := call(t, srv, "tools/call", map[string]any{
		"name":      "retrieve_code",
		"arguments": map[string]any{"session_id": sid, "query": "how does useEffect work"},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Sources []domain.RetrievedChunk `json:"sources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0].Filename != "Counter.jsx" {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
	if len(result.Content) != 1 || !strings.Contains(result.Content[0].Text, "### 1. Counter.jsx (lines 1-5) - react_hook") {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
}

func TestSessionStatsAndListTools(t *testing.T) {
	srv, sid := newTestServer(t)

	resp := call(t, srv, "tools/call", map[string]any{
		"name":      "session_stats",
		"arguments": map[string]any{"session_id": sid},
	})
	if resp.Error != nil {
		t.Fatalf("session_stats: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	if !strings.Contains(string(raw), "react_hook: 1") {
		t.Fatalf("stats text missing hook count: %s", raw)
	}

	resp = call(t, srv, "tools/call", map[string]any{"name": "list_sessions"})
	if resp.Error != nil {
		t.Fatalf("list_sessions: %+v", resp.Error)
	}
	raw, _ = json.Marshal(resp.Result)
	if !strings.Contains(string(raw), sid) {
		t.Fatalf("session %s not listed: %s", sid, raw)
	}
}

func TestRPCErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name   string
		method string
		params any
		code   int
	}{
		{"unknown method", "resources/list", nil, codeMethodNotFound},
		{"unknown tool", "tools/call", map[string]any{"name": "analyze"}, codeInvalidParams},
		{"bad session", "tools/call", map[string]any{
			"name":      "retrieve_code",
			"arguments": map[string]any{"session_id": "not-a-uuid", "query": "x"},
		}, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, srv, tc.method, tc.params)
			if resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("expected error code %d, got %+v", tc.code, resp.Error)
			}
		})
	}

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out JSONRPCResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Error == nil || out.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", out.Error)
	}
}

func TestHandleRPCRejectsGet(t *testing.T) {
	s := NewServer(nil, "0")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	s := NewServer(nil, "0")
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start after Shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept listening after Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	s := NewServer(nil, "0")
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	// Shutdown races Start here; both orders must end with Start returning.
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
