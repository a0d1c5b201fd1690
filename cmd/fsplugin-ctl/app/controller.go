package app

import (
	"go.uber.org/zap"

	"github.com/srediag/fsplugin/api"
)

// logController reports client callbacks to the log.
type logController struct {
	log *zap.Logger
}

var _ api.Controller = (*logController)(nil)

func (c *logController) UpdateWatchSet(repos []api.LocalRepo) {
	c.log.Info("watch set updated", zap.Int("repos", len(repos)))
	for _, r := range repos {
		c.log.Debug("repo", zap.String("worktree", r.Worktree), zap.Stringer("status", r.Status))
	}
}

func (c *logController) ShowSharedLink(path, link string) {
	c.log.Info("shared link", zap.String("path", path), zap.String("link", link))
}

func (c *logController) RequestFailed(op api.Operation, path string, err error) {
	c.log.Warn("request failed", zap.String("op", string(op)), zap.String("path", path), zap.Error(err))
}

func (c *logController) ConnectionStateChanged(state api.ConnState) {
	c.log.Debug("connection state", zap.Stringer("state", state))
}
