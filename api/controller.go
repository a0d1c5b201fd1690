// Package api defines public API contracts for fsplugin.
package api

//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks -source=controller.go Controller

// ConnState is the state of the channel between the extension and the sync engine.
type ConnState uint32

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Operation names a request made on behalf of the controller.
type Operation string

const (
	OpWatchSet   Operation = "watch_set"
	OpSharedLink Operation = "shared_link"
	OpPing       Operation = "ping"
)

// Controller is the Finder-extension side that receives results. The client
// holds it without owning it: the controller must outlive the client.
type Controller interface {
	// UpdateWatchSet delivers the repositories the extension should badge.
	UpdateWatchSet(repos []LocalRepo)
	// ShowSharedLink delivers the share link generated for path.
	ShowSharedLink(path, link string)
	// RequestFailed reports a request that could not be completed.
	RequestFailed(op Operation, path string, err error)
	// ConnectionStateChanged reports every connection state transition.
	ConnectionStateChanged(state ConnState)
}

// NopController ignores every callback.
type NopController struct{}

func (NopController) UpdateWatchSet([]LocalRepo)             {}
func (NopController) ShowSharedLink(string, string)          {}
func (NopController) RequestFailed(Operation, string, error) {}
func (NopController) ConnectionStateChanged(ConnState)       {}
