// Package api defines public API contracts for fsplugin.
package api

// Transport is a bidirectional message channel to the sync engine.
type Transport interface {
	Send(data []byte) error
	Receive() ([]byte, error)
}
