// Package api defines public API contracts for fsplugin.
package api

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SyncState is the sync status of a local repository as reported by the sync engine.
type SyncState uint8

// The order matches the wire encoding.
const (
	SyncStateDisabled SyncState = iota
	SyncStateWaiting
	SyncStateInit
	SyncStateSyncing
	SyncStateDone
	SyncStateError
	SyncStateUnknown
)

var syncStateNames = [...]string{
	SyncStateDisabled: "disabled",
	SyncStateWaiting:  "waiting",
	SyncStateInit:     "init",
	SyncStateSyncing:  "syncing",
	SyncStateDone:     "done",
	SyncStateError:    "error",
	SyncStateUnknown:  "unknown",
}

// Valid reports whether s is one of the known states.
func (s SyncState) Valid() bool {
	return s <= SyncStateUnknown
}

func (s SyncState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("SyncState(%d)", uint8(s))
	}
	return syncStateNames[s]
}

// SyncStateFromWire maps a wire value to a SyncState. Values outside the
// known range map to SyncStateUnknown.
func SyncStateFromWire(v uint8) SyncState {
	s := SyncState(v)
	if !s.Valid() {
		return SyncStateUnknown
	}
	return s
}

// ParseSyncState parses the lower-case state name produced by String.
func ParseSyncState(name string) (SyncState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range syncStateNames {
		if n == name {
			return SyncState(i), nil
		}
	}
	return SyncStateUnknown, fmt.Errorf("unknown sync state %q", name)
}

// LocalRepo is one locally synced repository known to the sync engine.
type LocalRepo struct {
	Worktree string    `json:"worktree" yaml:"worktree"`
	Status   SyncState `json:"status" yaml:"status"`
}

// NewLocalRepo returns a repo for worktree whose status is not yet known.
func NewLocalRepo(worktree string) LocalRepo {
	return LocalRepo{Worktree: worktree, Status: SyncStateUnknown}
}

// Contains reports whether path is the worktree itself or lies below it.
func (r LocalRepo) Contains(path string) bool {
	if r.Worktree == "" || path == "" {
		return false
	}
	root := filepath.Clean(r.Worktree)
	p := filepath.Clean(path)
	if p == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(p, root)
}

// MarshalText implements encoding.TextMarshaler so states render by name in json and yaml.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SyncState) UnmarshalText(text []byte) error {
	v, err := ParseSyncState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
