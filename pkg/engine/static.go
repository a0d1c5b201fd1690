package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/srediag/fsplugin/api"
)

// StaticHandler answers from a fixed repo list. Share links are derived from
// the file path so the same path always yields the same link.
type StaticHandler struct {
	mu       sync.RWMutex
	repos    []api.LocalRepo
	linkBase string
}

func NewStaticHandler(linkBase string, repos []api.LocalRepo) *StaticHandler {
	h := &StaticHandler{linkBase: strings.TrimSuffix(linkBase, "/")}
	h.SetRepos(repos)
	return h
}

// SetRepos replaces the repo list.
func (h *StaticHandler) SetRepos(repos []api.LocalRepo) {
	cp := make([]api.LocalRepo, len(repos))
	copy(cp, repos)
	h.mu.Lock()
	h.repos = cp
	h.mu.Unlock()
}

func (h *StaticHandler) WatchSet(ctx context.Context) ([]api.LocalRepo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]api.LocalRepo, len(h.repos))
	copy(out, h.repos)
	return out, nil
}

func (h *StaticHandler) SharedLink(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.repos {
		if r.Contains(path) {
			sum := sha256.Sum256([]byte(path))
			return fmt.Sprintf("%s/f/%x/", h.linkBase, sum[:8]), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, path)
}
