package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srediag/fsplugin/api"
	"github.com/srediag/fsplugin/pkg/engine"
)

// repoConfig is one entry of the repos list in the config file.
type repoConfig struct {
	Worktree string `mapstructure:"worktree"`
	Status   string `mapstructure:"status"`
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a fixed watch set on the engine socket",
		Long: `Serve answers the extension protocol from the repos list of the config file,
for example:

  link-base: https://seafile.example.com
  repos:
    - worktree: /Users/me/Seafile/docs
      status: done

It is meant for developing and testing clients without a sync engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repos, err := a.repos()
			if err != nil {
				return err
			}
			cfg := engine.DefaultConfig(a.v.GetString("socket"))
			cfg.Transport.VerifyPeer = a.v.GetBool("verify-peer")
			cfg.LogOutput = a.stderr
			srv, err := engine.NewServer(cfg, engine.NewStaticHandler(a.v.GetString("link-base"), repos))
			if err != nil {
				return err
			}
			if err := srv.Listen(); err != nil {
				return err
			}
			a.log.Info("serving", zap.String("socket", srv.Addr()), zap.Int("repos", len(repos)))

			done := make(chan error, 1)
			go func() { done <- srv.Serve() }()
			select {
			case <-ctxOrBackground(cmd.Context()).Done():
				a.log.Info("shutting down")
				if err := srv.Close(); err != nil {
					return err
				}
				<-done
				return nil
			case err := <-done:
				_ = srv.Close()
				return err
			}
		},
	}
}

func (a *app) repos() ([]api.LocalRepo, error) {
	var entries []repoConfig
	if err := a.v.UnmarshalKey("repos", &entries); err != nil {
		return nil, fmt.Errorf("repos: %w", err)
	}
	repos := make([]api.LocalRepo, 0, len(entries))
	for i, e := range entries {
		if e.Worktree == "" {
			return nil, fmt.Errorf("repos[%d]: worktree is required", i)
		}
		r := api.NewLocalRepo(e.Worktree)
		if e.Status != "" {
			s, err := api.ParseSyncState(e.Status)
			if err != nil {
				return nil, fmt.Errorf("repos[%d]: %w", i, err)
			}
			r.Status = s
		}
		repos = append(repos, r)
	}
	return repos, nil
}
