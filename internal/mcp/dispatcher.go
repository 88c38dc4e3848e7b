package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const protocolVersion = "2024-11-05"

// Server is the pure dispatcher spec §9 asks for: "factor the dispatcher
// out as a pure function of (request, state) -> response". State here is
// the immutable Registry plus server identity; HandleMessage has no
// transport-specific side effects, so stdio/HTTP/SSE can each call it
// directly.
type Server struct {
	registry *Registry
	info     ServerInfo
	log      *logrus.Entry
	deadline time.Duration
}

func NewServer(registry *Registry, info ServerInfo, log *logrus.Logger, deadline time.Duration) *Server {
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	return &Server{
		registry: registry,
		info:     info,
		log:      log.WithField("component", "mcp.dispatcher"),
		deadline: deadline,
	}
}

// HandleMessage parses one raw JSON-RPC request and returns the encoded
// response. A malformed payload yields a Parse error response (still
// valid JSON-RPC, never an empty byte slice) per spec §6.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResponse(nil, ErrCodeParse, "parse error", err.Error()))
	}
	resp := s.dispatch(ctx, &req)
	return encode(resp)
}

func encode(resp *Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		// Marshaling our own Response type cannot realistically fail; fall
		// back to a minimal internal-error envelope rather than panic.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}

// dispatch validates the method and routes to the matching handler (spec
// §4.F step 1). Unknown methods are MethodNotFound.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return successResponse(req.ID, InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      s.info,
		Capabilities:    map[string]any{"tools": map[string]any{}},
	})
}

func (s *Server) handleToolsList(req *Request) *Response {
	return successResponse(req.ID, ToolsListResult{Tools: s.registry.List()})
}

// handleToolsCall looks up the tool, invokes it with a bounded deadline
// and panic recovery (spec §4.F steps 2-5, §5 "the dispatcher never lets
// a handler panic crash the transport loop").
func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, ErrCodeInvalidParams, "invalid tools/call params", err.Error())
	}

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return errorResponse(req.ID, ErrCodeToolNotFound, fmt.Sprintf("unknown tool %q", params.Name), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	result := s.invoke(callCtx, tool, params.Arguments)
	return successResponse(req.ID, result)
}

// invoke runs the handler in its own goroutine, recovering a panic there
// into an error result rather than letting it unwind and crash the
// transport loop (spec §4.F, §5).
func (s *Server) invoke(ctx context.Context, tool *Tool, args json.RawMessage) (result ToolCallResult) {
	done := make(chan struct{})
	var value interface{}
	var err error
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("tool", tool.Name).Errorf("tool handler panicked: %v", r)
				err = fmt.Errorf("internal error in tool %q", tool.Name)
			}
		}()
		value, err = tool.Handler(ctx, args)
	}()

	select {
	case <-done:
		if err != nil {
			return errorResult(err.Error())
		}
		return textResult(value)
	case <-ctx.Done():
		// Grace period for the handler to notice cancellation and return
		// before this call gives up and reports a timeout (spec §5: "if it
		// does not return within a short grace period (<=5s)").
		grace := time.NewTimer(5 * time.Second)
		defer grace.Stop()
		select {
		case <-done:
			if err != nil {
				return errorResult(err.Error())
			}
			return textResult(value)
		case <-grace.C:
			return errorResult(fmt.Sprintf("tool %q timed out", tool.Name))
		}
	}
}
