// Package api defines public API contracts for fsplugin.
package api

// Plugin defines the lifecycle of a client instance.
type Plugin interface {
	Start() error
	Stop() error
	Reload() error
}
