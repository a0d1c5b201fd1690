package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/fsplugin/api"
)

const testConfig = `link-base: https://seafile.example.com
verify-peer: true
repos:
  - worktree: /Users/me/Seafile/docs
    status: done
  - worktree: /Users/me/Seafile/photos
    status: syncing
  - worktree: /Users/me/Seafile/new
`

var wantRepos = []api.LocalRepo{
	{Worktree: "/Users/me/Seafile/docs", Status: api.SyncStateDone},
	{Worktree: "/Users/me/Seafile/photos", Status: api.SyncStateSyncing},
	{Worktree: "/Users/me/Seafile/new", Status: api.SyncStateUnknown},
}

type AppTestSuite struct {
	suite.Suite
	dir    string
	socket string
	config string
	cancel context.CancelFunc
	done   chan int
}

func (s *AppTestSuite) SetupTest() {
	dir, err := os.MkdirTemp("", "fsp")
	s.Require().NoError(err)
	s.dir = dir
	s.socket = filepath.Join(dir, "e.sock")
	s.config = filepath.Join(dir, "fsplugin.yaml")
	s.Require().NoError(os.WriteFile(s.config, []byte(testConfig), 0o600))
}

func (s *AppTestSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
		select {
		case code := <-s.done:
			s.Zero(code)
		case <-time.After(5 * time.Second):
			s.Fail("serve did not stop")
		}
		s.cancel = nil
	}
	_ = os.RemoveAll(s.dir)
}

func (s *AppTestSuite) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := RunContext(context.Background(), append([]string{"fsplugin-ctl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (s *AppTestSuite) serve() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan int, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		s.done <- RunContext(ctx, []string{"fsplugin-ctl", "serve", "--config", s.config, "--socket", s.socket}, &stdout, &stderr)
	}()
	s.Require().Eventually(func() bool {
		_, err := os.Stat(s.socket)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *AppTestSuite) TestVersion() {
	code, out, _ := s.run("version")
	s.Zero(code)
	s.Contains(out, "fsplugin-ctl dev")

	code, out, _ = s.run("version", "--format", "json")
	s.Zero(code)
	var info versionInfo
	s.Require().NoError(json.Unmarshal([]byte(out), &info))
	s.Equal("dev", info.Version)
}

func (s *AppTestSuite) TestWatchSetJSON() {
	s.serve()
	code, out, errOut := s.run("watch-set", "--socket", s.socket, "--format", "json")
	s.Require().Zero(code, errOut)
	var repos []api.LocalRepo
	s.Require().NoError(json.Unmarshal([]byte(out), &repos))
	s.Equal(wantRepos, repos)
}

func (s *AppTestSuite) TestWatchSetYAMLAndTable() {
	s.serve()
	code, out, errOut := s.run("watch-set", "--socket", s.socket, "-o", "yaml")
	s.Require().Zero(code, errOut)
	s.Contains(out, "worktree: /Users/me/Seafile/photos")
	s.Contains(out, "status: syncing")

	code, out, errOut = s.run("watch-set", "--socket", s.socket)
	s.Require().Zero(code, errOut)
	s.Contains(out, "/Users/me/Seafile/docs")
	s.Contains(out, "done")
	s.Contains(out, "unknown")
}

func (s *AppTestSuite) TestShareLink() {
	s.serve()
	code, out, errOut := s.run("share-link", "--socket", s.socket, "/Users/me/Seafile/docs/a.txt")
	s.Require().Zero(code, errOut)
	s.Regexp(`^https://seafile\.example\.com/f/[0-9a-f]{16}/\n$`, out)

	code, _, errOut = s.run("share-link", "--socket", s.socket, "/tmp/elsewhere")
	s.Equal(1, code)
	s.Contains(errOut, "remote error 4")
}

func (s *AppTestSuite) TestEnvironment() {
	s.serve()
	s.T().Setenv("FSPLUGIN_SOCKET", s.socket)
	code, out, errOut := s.run("watch-set", "--format", "json")
	s.Require().Zero(code, errOut)
	s.Contains(out, "/Users/me/Seafile/docs")
}

func (s *AppTestSuite) TestErrors() {
	code, _, errOut := s.run("watch-set", "--format", "xml")
	s.Equal(1, code)
	s.Contains(errOut, `unknown format "xml"`)

	code, _, _ = s.run("share-link")
	s.Equal(1, code)

	code, _, errOut = s.run("watch-set", "--socket", s.socket, "--timeout", "100ms")
	s.Equal(1, code)
	s.Contains(errOut, "is the sync engine running?")

	code, _, errOut = s.run("version", "--config", filepath.Join(s.dir, "missing.yaml"))
	s.Equal(1, code)
	s.Contains(errOut, "read config")
}

func (s *AppTestSuite) TestBadRepoConfig() {
	s.Require().NoError(os.WriteFile(s.config, []byte("repos:\n  - worktree: /a\n    status: bogus\n"), 0o600))
	code, _, errOut := s.run("serve", "--config", s.config, "--socket", s.socket)
	s.Equal(1, code)
	s.Contains(errOut, `unknown sync state "bogus"`)
}

type stubHealth struct{ ready error }

func (stubHealth) LivenessCheck() error    { return nil }
func (h stubHealth) ReadinessCheck() error { return h.ready }

func (s *AppTestSuite) TestHealthMux() {
	reg := prometheus.NewRegistry()
	mux := newHealthMux(stubHealth{}, reg)

	for _, path := range []string{"/live", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		s.Equal(http.StatusOK, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Contains(rec.Body.String(), "fsplugin_healthcheck_status")
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}
