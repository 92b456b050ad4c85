// Package mcp exposes MFP's four meta-tools over a minimal JSON
// envelope. It never depends on a particular MCP wire library: protocol
// framing is treated as an external collaborator, so Server is plain Go
// underneath and transport.go (ServeStdio, HTTPHandler) is the only part
// that knows about request/response framing.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mfp-dev/mfp/internal/cache"
	"github.com/mfp-dev/mfp/internal/executor"
	"github.com/mfp-dev/mfp/internal/registry"
	"github.com/mfp-dev/mfp/internal/spec"
)

// ToolHandler answers one tool call with arguments already decoded
// from JSON, returning a value that itself marshals to the tool's
// documented response shape. A ToolHandler never returns a Go error
// for a business-logic failure — the four meta-tools catch everything
// and convert it into a response value — only for malformed arguments,
// which Server converts to the same {error, error_type: "internal"}
// shape.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Server wires the registry, cache, and executor into the four
// meta-tools list_servers/get_function/execute_code/get_cached_code.
type Server struct {
	Registry *registry.Registry
	Cache    *cache.Store
	Executor *executor.Executor

	handlers map[string]ToolHandler
}

// New builds a Server with all four tools registered.
func New(reg *registry.Registry, store *cache.Store, exec *executor.Executor) *Server {
	s := &Server{Registry: reg, Cache: store, Executor: exec}
	s.handlers = map[string]ToolHandler{
		"list_servers":    s.listServers,
		"get_function":    s.getFunction,
		"execute_code":    s.executeCode,
		"get_cached_code": s.getCachedCode,
	}
	return s
}

// ToolNames returns the four tool names in their documented order, for
// a transport's registration step.
func (s *Server) ToolNames() []string {
	return []string{"list_servers", "get_function", "execute_code", "get_cached_code"}
}

// Call dispatches one tool invocation by name. An unknown tool name is
// the one case Call itself reports as an error shape rather than
// delegating, since no handler exists to ask.
func (s *Server) Call(ctx context.Context, tool string, args json.RawMessage) any {
	h, ok := s.handlers[tool]
	if !ok {
		return errorResponse(fmt.Sprintf("unknown tool %q", tool))
	}
	result, err := h(ctx, args)
	if err != nil {
		return errorResponse(err.Error())
	}
	return result
}

func errorResponse(message string) map[string]any {
	return map[string]any{"error": message, "error_type": "internal"}
}

// serverSummary mirrors list_servers' documented per-server shape:
// name, a one-line summary, and the names of its compiled functions.
type serverSummary struct {
	Name      string   `json:"name"`
	Summary   string   `json:"summary"`
	Functions []string `json:"functions"`
}

func (s *Server) listServers(_ context.Context, _ json.RawMessage) (any, error) {
	summaries := s.Registry.ListServers()
	out := make([]serverSummary, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, serverSummary{
			Name:      sum.Name,
			Summary:   fmt.Sprintf("%d endpoints compiled", sum.EndpointCount),
			Functions: s.Registry.FunctionNames(sum.Name),
		})
	}
	return map[string]any{"servers": out}, nil
}

type getFunctionArgs struct {
	Server   string `json:"server"`
	Function string `json:"name"`
}

func (s *Server) getFunction(_ context.Context, raw json.RawMessage) (any, error) {
	var args getFunctionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("get_function: decode arguments: %w", err)
	}
	fn, err := s.Registry.GetFunction(args.Server, args.Function)
	if err != nil {
		return map[string]any{"error": err.Error(), "error_type": "internal"}, nil
	}
	return map[string]any{
		"parameters":     fn.Parameters,
		"returns":        fn.Returns,
		"usage_example":  fmt.Sprintf("from %s.functions import %s\nresult = %s\nprint(result)", args.Server, fn.Name, fn.Signature),
		"source_excerpt": fn.SourceExcerpt,
	}, nil
}

type executeCodeArgs struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (s *Server) executeCode(ctx context.Context, raw json.RawMessage) (any, error) {
	var args executeCodeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("execute_code: decode arguments: %w", err)
	}
	result := s.Executor.Execute(ctx, args.Code, args.Description)
	return result, nil
}

type getCachedCodeArgs struct {
	Search string `json:"search"`
	Limit  int    `json:"limit"`
}

func (s *Server) getCachedCode(_ context.Context, raw json.RawMessage) (any, error) {
	var args getCachedCodeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("get_cached_code: decode arguments: %w", err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.Cache.Search(args.Search, limit)
	if err != nil {
		return map[string]any{"error": err.Error(), "error_type": "internal"}, nil
	}
	return map[string]any{"entries": publicEntries(entries)}, nil
}

// publicEntries strips nothing today (every CacheEntry field is
// already safe to hand back to a caller), but exists as the one seam
// that would absorb a future "internal-only field" without touching
// the transport layer.
func publicEntries(entries []spec.CacheEntry) []spec.CacheEntry {
	return entries
}
