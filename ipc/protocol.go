package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Methods understood by the peer.
const (
	MethodListCommands   = "listCommands"
	MethodExecuteCommand = "executeCommand"
)

// Request is the single message sent on a connection.
type Request struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
	Token  string         `json:"token,omitempty"` // present only when a token is configured
}

// Response is the single message read back from the peer. An absent or null
// Error means success regardless of what Result holds.
type Response struct {
	ID     any             `json:"id"` // string or null; the peer is not required to echo it
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object reported by the peer.
type RPCError struct {
	Message string          `json:"message"`
	Code    ErrorCode       `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ErrorCode is a peer error code. The protocol uses strings; numeric codes
// are accepted and kept in their decimal form, except zero, which counts as
// no code.
type ErrorCode string

// UnmarshalJSON accepts a JSON string, number or null.
func (c *ErrorCode) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ErrorCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("error code must be a string or a number, got %s", data)
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		*c = ""
		return nil
	}
	*c = ErrorCode(n.String())
	return nil
}

// Encode frames a request as one newline-terminated JSON line.
func Encode(req *Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", req.Method, err)
	}
	return append(data, '\n'), nil
}

// ReadResponse reads newline-terminated lines from r until it finds a
// non-blank one and decodes it. Bytes that are not followed by a newline are
// never decoded: if the stream ends first, io.EOF (nothing buffered) or
// io.ErrUnexpectedEOF (a partial line was buffered) is returned. A line that
// is not valid JSON yields a *ProtocolError.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, &ProtocolError{Err: err}
		}
		return &resp, nil
	}
}

// isNull reports whether a raw JSON value is absent or the literal null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
