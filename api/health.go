// Package api defines public API contracts for fsplugin.
package api

// Health reports liveness and readiness of a client.
type Health interface {
	// LivenessCheck fails once the client has been stopped.
	LivenessCheck() error
	// ReadinessCheck fails while the client is not connected.
	ReadinessCheck() error
}
