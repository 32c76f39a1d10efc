package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JSON-RPC 2.0 standard error codes, per spec.md §6.
const (
	rpcCodeInvalidRequest = -32600
	rpcCodeMethodNotFound = -32601
	rpcCodeInvalidParams  = -32602
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

// serveHTTP implements the http transport's single JSON-RPC POST endpoint by
// hand, alongside a prometheus /metrics endpoint and a /healthz liveness
// probe. initialize/tools/list/tools/call are dispatched against the same
// toolEntry registry registerTools built, so stdio and http never see a
// different tool set. Written without the SDK's own HTTP transport because
// the teacher's code treats anything beyond stdio as unproven against this
// SDK version.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/mcp", s.handleJSONRPC)

	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPC(w, jsonRPCResponse{
			JSONRPC: "2.0",
			Error:   &jsonRPCError{Code: rpcCodeInvalidRequest, Message: "malformed JSON-RPC request: " + err.Error()},
		})
		return
	}

	resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "ragcrawl", "version": s.version()},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}

	case "tools/list":
		descriptors := make([]toolDescriptor, len(s.entries))
		for i, e := range s.entries {
			descriptors[i] = toolDescriptor{
				Name:        e.Name,
				Description: e.Description,
				InputSchema: map[string]any{"type": "object"},
			}
		}
		resp.Result = map[string]any{"tools": descriptors}

	case "tools/call":
		var params toolsCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &jsonRPCError{Code: rpcCodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
			break
		}

		entry := s.findTool(params.Name)
		if entry == nil {
			resp.Error = &jsonRPCError{Code: rpcCodeMethodNotFound, Message: "unknown tool: " + params.Name}
			break
		}

		out, err := entry.Call(r.Context(), params.Arguments)
		if err != nil {
			// A non-nil error here is a protocol-level failure (bad params,
			// unmarshal error) rather than a tool-level business failure —
			// those are already embedded in out's Status field by the
			// handler and never reach this branch as a Go error.
			resp.Error = &jsonRPCError{Code: rpcCodeInvalidParams, Message: err.Error()}
			break
		}
		resp.Result = map[string]any{"content": []map[string]any{{"type": "json", "json": out}}}

	default:
		resp.Error = &jsonRPCError{Code: rpcCodeMethodNotFound, Message: "unknown method: " + req.Method}
	}

	writeJSONRPC(w, resp)
}

func (s *Server) findTool(name string) *toolEntry {
	for i := range s.entries {
		if s.entries[i].Name == name {
			return &s.entries[i]
		}
	}
	return nil
}

func writeJSONRPC(w http.ResponseWriter, resp jsonRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
