package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/onec-platform-tools/mcp-1c-platform-tools/config"
)

// Mock server timeouts
const (
	// MockReadTimeout bounds how long the mock waits for a request line.
	MockReadTimeout = 10 * time.Second
	// MockWriteTimeout bounds how long the mock waits to write a response.
	MockWriteTimeout = 10 * time.Second
)

// MockHandler produces the result or error for one request.
type MockHandler func(req Request) (result any, rpcErr *RPCError)

// MockServer is an in-process peer speaking the IPC protocol on a loopback
// TCP port. It serves one request per connection and closes the connection
// after responding, like the real peer. Used by tests and by the CLI's
// self-check.
type MockServer struct {
	listener    net.Listener
	mu          sync.Mutex
	handlers    map[string]MockHandler
	raw         map[string]func(req Request) string
	silent      map[string]bool
	requests    []Request
	conns       map[net.Conn]struct{}
	closed      bool
	wg          sync.WaitGroup
	disconnects chan struct{}
}

// NewMockServer starts a mock peer on 127.0.0.1 with an ephemeral port.
func NewMockServer() (*MockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &MockServer{
		listener:    ln,
		handlers:    make(map[string]MockHandler),
		raw:         make(map[string]func(req Request) string),
		silent:      make(map[string]bool),
		conns:       make(map[net.Conn]struct{}),
		disconnects: make(chan struct{}, 64),
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Port returns the TCP port the mock listens on.
func (s *MockServer) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Endpoint returns an endpoint pointing at the mock.
func (s *MockServer) Endpoint(timeout time.Duration) config.Endpoint {
	return config.Endpoint{Host: "127.0.0.1", Port: s.Port(), Timeout: timeout}
}

// Handle registers a structured handler for method.
func (s *MockServer) Handle(method string, h MockHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleResult registers a handler that always succeeds with result.
func (s *MockServer) HandleResult(method string, result any) {
	s.Handle(method, func(Request) (any, *RPCError) { return result, nil })
}

// HandleRaw registers a handler whose return value is written to the
// connection verbatim (it may be empty, lack a newline or be invalid JSON)
// before the connection is closed.
func (s *MockServer) HandleRaw(method string, h func(req Request) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[method] = h
}

// HandleSilent makes the mock never answer method. The connection stays open
// until the client closes it.
func (s *MockServer) HandleSilent(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[method] = true
}

// Requests returns a copy of every request received so far.
func (s *MockServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Disconnects receives one value each time a connection handler finishes.
func (s *MockServer) Disconnects() <-chan struct{} {
	return s.disconnects
}

func (s *MockServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockServer) run() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *MockServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		select {
		case s.disconnects <- struct{}{}:
		default:
		}
	}()

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(MockReadTimeout))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(conn, Response{Error: &RPCError{Message: "invalid json", Code: "INVALID_REQUEST"}})
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	handler := s.handlers[req.Method]
	raw := s.raw[req.Method]
	silent := s.silent[req.Method]
	s.mu.Unlock()

	switch {
	case silent:
		// Wait for the client to give up and close its end.
		conn.SetReadDeadline(time.Time{})
		for {
			if _, err := reader.ReadByte(); err != nil {
				return
			}
		}
	case raw != nil:
		conn.SetWriteDeadline(time.Now().Add(MockWriteTimeout))
		conn.Write([]byte(raw(req)))
	case handler != nil:
		result, rpcErr := handler(req)
		resp := Response{ID: req.ID, Error: rpcErr}
		if rpcErr == nil && result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = &RPCError{Message: err.Error(), Code: "INTERNAL"}
			} else {
				resp.Result = data
			}
		}
		s.writeResponse(conn, resp)
	default:
		s.writeResponse(conn, Response{
			ID:    req.ID,
			Error: &RPCError{Message: "unknown method: " + req.Method, Code: "METHOD_NOT_FOUND"},
		})
	}
}

func (s *MockServer) writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(MockWriteTimeout))
	conn.Write(append(data, '\n'))
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *MockServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}
