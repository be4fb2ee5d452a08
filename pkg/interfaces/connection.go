// Package interfaces defines the contracts between the realtime transport
// and the coordination components, so registry, broadcaster and coordinator
// never depend on the concrete WebSocket implementation.
package interfaces

// Connection is one live transport connection. Send must be non-blocking
// with respect to the remote peer: implementations queue the message and a
// delivery failure affects only this connection.
type Connection interface {
	ID() string
	Send(event string, data any) error
	Close() error
}
