package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// request is the envelope both transports decode: a tool name plus its
// arguments, still raw so each handler controls its own argument
// struct.
type request struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// ServeStdio reads one JSON request per line from r and writes one
// JSON response per line to w, until r is exhausted or ctx is done.
// This is MFP's default transport: an LLM host speaks MCP over the
// child process's stdio pipes, one line at a time, with no framing
// beyond the newline.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer, log *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(errorResponse(fmt.Sprintf("malformed request: %v", err))); err != nil {
				return err
			}
			continue
		}
		resp := s.Call(ctx, req.Tool, req.Arguments)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("mcp: stdio read error", zap.Error(err))
		return err
	}
	return nil
}

// HTTPHandler returns an http.Handler exposing one POST endpoint that
// decodes a request envelope and writes back the same JSON shape the
// stdio transport produces. Used by `serve --transport http`.
func (s *Server) HTTPHandler(log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, log, errorResponse(fmt.Sprintf("malformed request: %v", err)))
			return
		}
		resp := s.Call(r.Context(), req.Tool, req.Arguments)
		writeJSON(w, log, resp)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("mcp: write response", zap.Error(err))
	}
}
