// internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/headless-mcp/internal/tools"
)

// Dispatcher executes named operations. *tools.Dispatcher satisfies it.
type Dispatcher interface {
	Operations() []*tools.Operation
	Dispatch(ctx context.Context, name string, args map[string]any) tools.Outcome
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	// ToolPrefix is prepended to every operation name to form the tool name.
	ToolPrefix string
	// RateLimit caps tools/call per second; zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server speaks MCP over a Transport and forwards tool calls to a Dispatcher.
// Messages are handled one at a time in arrival order.
type Server struct {
	dispatcher Dispatcher
	opts       Options
	limiter    *rate.Limiter
	logger     *zap.Logger

	clientInitialized atomic.Bool
}

// NewServer creates a server over d.
func NewServer(d Dispatcher, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		dispatcher: d,
		opts:       opts,
		logger:     logger.Named("mcp"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Tools returns the tool definitions announced in tools/list.
func (s *Server) Tools() []ToolDefinition {
	ops := s.dispatcher.Operations()
	defs := make([]ToolDefinition, 0, len(ops))
	for _, op := range ops {
		defs = append(defs, ToolDefinition{
			Name:        s.opts.ToolPrefix + op.Name,
			Description: op.Description,
			InputSchema: op.Schema(),
		})
	}
	return defs
}

// Serve runs the message loop until the transport reaches EOF or ctx is done.
// Reaching EOF is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context, transport Transport) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}

	s.logger.Info("MCP server starting",
		zap.String("name", s.opts.Name),
		zap.String("version", s.opts.Version),
		zap.String("tool_prefix", s.opts.ToolPrefix),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type received struct {
		msg *Message
		err error
	}
	// Reads block without honoring ctx, so they happen on their own goroutine.
	// The reader stops after the first terminal error.
	incoming := make(chan received)
	go func() {
		for {
			msg, err := transport.Receive()
			select {
			case incoming <- received{msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
			var decErr *DecodeError
			if err != nil && !errors.As(err, &decErr) {
				return
			}
		}
	}()

	for {
		var in received
		select {
		case <-ctx.Done():
			s.logger.Info("MCP server stopping: context cancelled")
			return ctx.Err()
		case in = <-incoming:
		}

		if in.err != nil {
			var decErr *DecodeError
			switch {
			case errors.As(in.err, &decErr):
				s.logger.Warn("Received malformed message", zap.Error(in.err))
				if err := transport.Send(ctx, newErrorResponse(nil, CodeParseError, "Parse error")); err != nil {
					s.logger.Error("failed to send error response", zap.Error(err))
				}
				continue
			case errors.Is(in.err, io.EOF):
				s.logger.Info("MCP server stopping: input closed")
				return nil
			default:
				return fmt.Errorf("transport receive: %w", in.err)
			}
		}

		resp := s.HandleMessage(ctx, in.msg)
		if resp == nil {
			continue
		}
		if err := transport.Send(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport send: %w", err)
		}
	}
}

// HandleMessage processes one message and returns the response to send, or nil for
// notifications and stray responses.
func (s *Server) HandleMessage(ctx context.Context, msg *Message) *Message {
	if msg == nil {
		return newErrorResponse(nil, CodeInvalidRequest, "Invalid Request")
	}
	if msg.JSONRPC != jsonrpcVersion {
		if msg.IsNotification() {
			return nil
		}
		return newErrorResponse(msg.ID, CodeInvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"")
	}
	if msg.Method == "" {
		// Responses to requests this server never sends.
		if msg.IsNotification() || msg.Result != nil || msg.Error != nil {
			return nil
		}
		return newErrorResponse(msg.ID, CodeInvalidRequest, "Invalid Request: missing method")
	}

	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}

	s.logger.Debug("handling request", zap.String("method", msg.Method), zap.ByteString("id", msg.ID))

	result, rpcErr := s.dispatch(ctx, msg)
	if rpcErr != nil {
		return &Message{JSONRPC: jsonrpcVersion, ID: msg.ID, Error: rpcErr}
	}
	return newResponse(msg.ID, result)
}

func (s *Server) handleNotification(msg *Message) {
	switch msg.Method {
	case "notifications/initialized":
		s.clientInitialized.Store(true)
		s.logger.Info("Client initialized notification received")
	default:
		s.logger.Debug("Unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *Server) dispatch(ctx context.Context, msg *Message) (any, *Error) {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return ListToolsResult{Tools: s.Tools()}, nil
	case "tools/call":
		return s.handleToolsCall(ctx, msg)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "Method not found: " + msg.Method}
	}
}

func (s *Server) handleInitialize(msg *Message) (any, *Error) {
	var params InitializeParams
	if len(msg.Params) > 0 {
		if err := wire.Unmarshal(msg.Params, &params); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
		}
	}
	s.logger.Info("Client connected",
		zap.String("client", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("requested_protocol", params.ProtocolVersion),
	)
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      Implementation{Name: s.opts.Name, Version: s.opts.Version},
	}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, msg *Message) (any, *Error) {
	var params CallToolParams
	if len(msg.Params) > 0 {
		if err := wire.Unmarshal(msg.Params, &params); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: " + err.Error()}
		}
	}
	if params.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "Invalid params: missing tool name"}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: "rate limiter: " + err.Error()}
		}
	}

	if !s.clientInitialized.Load() {
		// Tolerated: some clients skip the notification and call tools straight away.
		s.logger.Debug("Tool call before notifications/initialized", zap.String("tool", params.Name))
	}

	opName, ok := strings.CutPrefix(params.Name, s.opts.ToolPrefix)
	if !ok {
		return CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: "Unknown tool: " + params.Name}},
			IsError: true,
		}, nil
	}

	out := s.dispatcher.Dispatch(ctx, opName, params.Arguments)
	s.logger.Info("Tool call handled",
		zap.String("tool", params.Name),
		zap.Stringer("outcome", out.Kind),
		zap.Bool("retryable", out.Retryable),
		zap.Bool("client_initialized", s.clientInitialized.Load()),
	)
	return CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: out.Text}},
		IsError: out.IsError(),
	}, nil
}
