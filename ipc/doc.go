// Package ipc implements the client side of the 1c-platform-tools IPC protocol.
//
// # Overview
//
// The peer (the 1c-platform-tools editor extension) listens on a local TCP
// port. Each call opens a new connection, writes one request and reads one
// response; the peer closes the connection afterwards. There is no batching,
// multiplexing or keep-alive.
//
// # Wire format
//
// Both directions use one UTF-8 JSON object per line, terminated by '\n':
//
//	→ {"id":"<uuid>","method":"executeCommand","params":{...},"token":"..."}
//	← {"id":"<uuid>","result":{"ok":true,"commandResult":...}}
//	← {"id":"<uuid>","error":{"message":"...","code":"...","details":...}}
//
// The token field is sent only when one is configured. Blank lines are
// skipped; a line that is not valid JSON fails the call.
//
// # Components
//
// Client: resolves one call at a time per connection. A pending call settles
// exactly once with the first of: response, peer error, malformed line,
// socket error, timeout. Later events are ignored.
//
// MockServer: an in-process peer used by tests and the CLI self-check.
//
// # Errors
//
// Every failure is one of *ConnectionError, *TimeoutError, *ProtocolError,
// *PeerError or *CommandError, all usable with errors.As. Nothing is retried.
package ipc
