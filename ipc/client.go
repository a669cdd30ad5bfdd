package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
	"github.com/onec-platform-tools/mcp-1c-platform-tools/logger"
)

// Client calls the peer over TCP. Every call opens its own connection, sends
// one request, reads one response and closes the connection. A Client holds no
// mutable state and is safe for concurrent use.
type Client struct {
	endpoint config.Endpoint
	dialer   *net.Dialer
	newID    func() string
	log      *slog.Logger
}

// ClientOption is a functional option for configuring Client
type ClientOption func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithIDGenerator replaces the request id generator (uuid by default).
func WithIDGenerator(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithDialer replaces the dialer used to reach the peer.
func WithDialer(d *net.Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// NewClient creates a client for a resolved endpoint.
func NewClient(endpoint config.Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		dialer:   &net.Dialer{},
		newID:    uuid.NewString,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint the client was built with.
func (c *Client) Endpoint() config.Endpoint {
	return c.endpoint
}

// pendingCall is the correlation record of one in-flight request. It settles
// exactly once; later events are dropped.
type pendingCall struct {
	id     string
	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newPendingCall(id string) *pendingCall {
	return &pendingCall{id: id, done: make(chan struct{})}
}

// settle records the outcome if the call is still open and reports whether
// this event was the one that finished it.
func (p *pendingCall) settle(result json.RawMessage, err error) bool {
	settled := false
	p.once.Do(func() {
		p.result = result
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

func (p *pendingCall) resolve(result json.RawMessage) bool { return p.settle(result, nil) }

func (p *pendingCall) reject(err error) bool { return p.settle(nil, err) }

// callConn hands the connection from the exchange goroutine to the caller so
// that it can be closed from whichever side finishes the call.
type callConn struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// set stores conn, or closes it immediately when the call is already over.
func (cc *callConn) set(conn net.Conn) bool {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		conn.Close()
		return false
	}
	cc.conn = conn
	return true
}

func (cc *callConn) close() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.closed = true
	if cc.conn != nil {
		cc.conn.Close()
	}
}

// Request sends method with params and waits for exactly one terminal event:
// a success response (its raw result is returned), an error response
// (*PeerError), a malformed line (*ProtocolError), a socket failure
// (*ConnectionError) or the endpoint timeout (*TimeoutError). Cancelling ctx
// ends the call with ctx.Err(). The connection is closed before Request
// returns on every path. The call is never retried.
func (c *Client) Request(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	req := &Request{
		ID:     c.newID(),
		Method: method,
		Params: params,
	}
	if c.endpoint.Token != "" {
		req.Token = c.endpoint.Token
	}

	frame, err := Encode(req)
	if err != nil {
		return nil, err
	}

	addr := c.endpoint.Address()
	log := c.log.With("method", method, "id", req.ID)
	log.Debug("sending request", "addr", addr)

	pending := newPendingCall(req.ID)
	conn := &callConn{}

	exchangeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(c.endpoint.Timeout)
	defer timer.Stop()

	go c.exchange(exchangeCtx, addr, frame, pending, conn, log)

	select {
	case <-pending.done:
	case <-timer.C:
		if pending.reject(&TimeoutError{Method: method, After: c.endpoint.Timeout}) {
			log.Error("request timed out", "timeout", c.endpoint.Timeout)
		}
	case <-ctx.Done():
		if pending.reject(ctx.Err()) {
			log.Warn("request cancelled", "error", ctx.Err())
		}
	}

	cancel()
	conn.close()
	return pending.result, pending.err
}

// exchange dials, writes the framed request and reads the response, settling
// pending with whatever happens first.
func (c *Client) exchange(ctx context.Context, addr string, frame []byte, pending *pendingCall, cc *callConn, log *slog.Logger) {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.failConnection(pending, addr, err, log)
		return
	}
	if !cc.set(conn) {
		return
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		c.failConnection(pending, addr, err, log)
		return
	}

	resp, err := ReadResponse(bufio.NewReader(conn))
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			if pending.reject(protoErr) {
				log.Error("malformed response", "error", protoErr.Err)
			}
			return
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrClosedBeforeResponse
		}
		c.failConnection(pending, addr, err, log)
		return
	}

	c.settleResponse(pending, resp, log)
}

func (c *Client) failConnection(pending *pendingCall, addr string, err error, log *slog.Logger) {
	if pending.reject(&ConnectionError{Addr: addr, Err: err}) {
		log.Error("connection failed", "addr", addr, "error", err)
	}
}

func (c *Client) settleResponse(pending *pendingCall, resp *Response, log *slog.Logger) {
	if id, ok := resp.ID.(string); ok && id != pending.id {
		err := &ProtocolError{Err: fmt.Errorf("response id %q does not match request id %q", id, pending.id)}
		if pending.reject(err) {
			log.Error("response id mismatch", "responseID", id)
		}
		return
	}

	if resp.Error != nil {
		peerErr := newPeerError(resp.Error)
		if pending.reject(peerErr) {
			log.Error("peer returned error", "error", peerErr.Error())
		}
		return
	}

	if pending.resolve(resp.Result) {
		log.Debug("response received", "bytes", len(resp.Result))
	}
}

// call performs a request and decodes a non-null result into T. A null or
// absent result yields nil.
func call[T any](ctx context.Context, c *Client, method string, params map[string]any) (*T, error) {
	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("decode %s result: %w", method, err)}
	}
	return &out, nil
}

// resultObject returns the result as a JSON object, or nil for any other shape.
func resultObject(res *any) map[string]any {
	if res == nil {
		return nil
	}
	obj, _ := (*res).(map[string]any)
	return obj
}

// ListCommands returns the operation identifiers published by the peer. A
// result that is not an object, or has no commands field, yields an empty
// slice. A commands field that is not a list of strings is a *ProtocolError.
func (c *Client) ListCommands(ctx context.Context) ([]string, error) {
	res, err := call[any](ctx, c, MethodListCommands, nil)
	if err != nil {
		return nil, err
	}

	field, ok := resultObject(res)["commands"]
	if !ok || field == nil {
		return []string{}, nil
	}
	list, ok := field.([]any)
	if !ok {
		return nil, &ProtocolError{Err: fmt.Errorf("commands is %T, want a list", field)}
	}

	commands := make([]string, 0, len(list))
	for i, item := range list {
		id, ok := item.(string)
		if !ok {
			return nil, &ProtocolError{Err: fmt.Errorf("commands[%d] is %T, want a string", i, item)}
		}
		commands = append(commands, id)
	}
	return commands, nil
}

// ExecuteCommand runs commandID on the peer in the context of projectPath.
// args is omitted from the request when nil. Only an object result whose ok
// field is the boolean false is a failure, returned as a *CommandError.
// Otherwise the result's commandResult is returned, nil when absent or when
// the result is not an object.
func (c *Client) ExecuteCommand(ctx context.Context, commandID string, args []any, projectPath string) (any, error) {
	params := map[string]any{
		"commandId":   commandID,
		"projectPath": projectPath,
	}
	if args != nil {
		params["args"] = args
	}

	res, err := call[any](ctx, c, MethodExecuteCommand, params)
	if err != nil {
		return nil, err
	}

	obj := resultObject(res)
	if ok, isBool := obj["ok"].(bool); isBool && !ok {
		var message *string
		if m, isString := obj["message"].(string); isString {
			message = &m
		}
		return nil, newCommandError(commandID, message)
	}
	return obj["commandResult"], nil
}
