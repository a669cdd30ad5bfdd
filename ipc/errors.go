package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClosedBeforeResponse is the cause of a ConnectionError when the peer
// closes the connection without sending a complete response line.
var ErrClosedBeforeResponse = errors.New("соединение закрыто до получения ответа")

// ConnectionError is a socket-level failure: refused, reset, DNS, or the
// stream ending before a response.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return "Не удалось подключиться к расширению 1c-platform-tools по IPC: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means no terminal event arrived within the endpoint timeout.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return "Таймаут ожидания ответа от расширения 1c-platform-tools по IPC"
}

// Timeout marks the error as a timeout for callers checking net.Error-style.
func (e *TimeoutError) Timeout() bool { return true }

// ProtocolError means a received line was not well-formed.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return "Некорректный ответ от расширения 1c-platform-tools по IPC: " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PeerError is an error object reported by the peer.
type PeerError struct {
	Message string
	Code    string
	Details json.RawMessage
}

const unknownPeerErrorMessage = "Неизвестная ошибка IPC-сервера"

func newPeerError(e *RPCError) *PeerError {
	msg := e.Message
	if msg == "" {
		msg = unknownPeerErrorMessage
	}
	return &PeerError{Message: msg, Code: string(e.Code), Details: e.Details}
}

// Error returns the peer message with the code appended when present.
func (e *PeerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (код: %s)", e.Message, e.Code)
	}
	return e.Message
}

// CommandError is an application-level failure: the exchange succeeded but the
// command result carried ok = false.
type CommandError struct {
	CommandID string
	Message   string
}

func newCommandError(commandID string, message *string) *CommandError {
	if message != nil {
		return &CommandError{CommandID: commandID, Message: *message}
	}
	return &CommandError{
		CommandID: commandID,
		Message:   fmt.Sprintf("Команда %s вернула ok = false без сообщения", commandID),
	}
}

func (e *CommandError) Error() string { return e.Message }
