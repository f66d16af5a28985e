// internal/mcp/transport.go
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Transport moves messages between the server and its client.
type Transport interface {
	// Receive blocks until the next message arrives. It returns io.EOF once the peer
	// has closed its side, and a *DecodeError for a frame that is not valid JSON-RPC.
	Receive() (*Message, error)
	Send(ctx context.Context, msg *Message) error
}

// DecodeError reports a frame that could not be parsed. The stream stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StdioTransport frames messages as newline-delimited JSON objects.
type StdioTransport struct {
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  io.Writer
}

// NewStdioTransport creates a transport reading from r and writing to w.
func NewStdioTransport(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
	}
}

// Receive reads the next non-blank line and decodes it.
func (t *StdioTransport) Receive() (*Message, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		// A final line without a trailing newline is still a frame.
		var msg Message
		if decErr := wire.Unmarshal(line, &msg); decErr != nil {
			return nil, &DecodeError{Err: decErr}
		}
		return &msg, nil
	}
}

// Send writes msg as a single line.
func (t *StdioTransport) Send(_ context.Context, msg *Message) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
