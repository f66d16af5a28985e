// internal/mcp/types.go
package mcp

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/headless-mcp/internal/tools"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

const jsonrpcVersion = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// wire is the codec for everything crossing the transport.
var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is a JSON-RPC 2.0 request, notification or response. ID and Params are
// kept raw so IDs are echoed back exactly as received.
type Message struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      jsoniter.RawMessage `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Params  jsoniter.RawMessage `json:"params,omitempty"`
	Result  any                 `json:"result,omitempty"`
	Error   *Error              `json:"error,omitempty"`
}

// IsNotification reports whether the message carries no ID and expects no response.
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// nullID is used for errors that cannot be correlated with a request.
var nullID = jsoniter.RawMessage("null")

func newResponse(id jsoniter.RawMessage, result any) *Message {
	return &Message{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func newErrorResponse(id jsoniter.RawMessage, code int, message string) *Message {
	if len(id) == 0 {
		id = nullID
	}
	return &Message{JSONRPC: jsonrpcVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

// Implementation names a server or client.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities is the capability set announced on initialize.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// InitializeParams is the subset of the client's initialize request the server reads.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// ToolDefinition describes one tool in tools/list.
type ToolDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema tools.Schema `json:"inputSchema"`
}

// ListToolsResult answers tools/list.
type ListToolsResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// CallToolParams is the payload of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is one piece of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult answers tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}
