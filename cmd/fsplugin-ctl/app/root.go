// Package app implements the fsplugin-ctl commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srediag/fsplugin/plugin"
)

// EnvPrefix is the prefix of environment variables read by fsplugin-ctl.
const EnvPrefix = "FSPLUGIN"

const defaultRequestTimeout = 5 * time.Second

// Run executes fsplugin-ctl with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, args, stdout, stderr)
}

// RunContext is Run with a caller supplied context. Long running commands
// stop when ctx is done.
func RunContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args[1:])
	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries the state shared by all commands of one invocation.
type app struct {
	v      *viper.Viper
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fsplugin-ctl",
		Short:         "Talk to the sync engine the way the Finder extension does",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("socket", plugin.DefaultSocketPath(), "Unix socket of the sync engine")
	flags.Duration("timeout", defaultRequestTimeout, "Request timeout")
	flags.Bool("verify-peer", true, "Reject an engine running as another user")
	flags.Bool("debug", false, "Enable debug logging")
	for _, name := range []string{"config", "socket", "timeout", "verify-peer", "debug"} {
		if err := a.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	a.v.SetDefault("engine-process", plugin.DefaultConfig().EngineProcessName)
	a.v.SetDefault("link-base", "http://127.0.0.1:8000")

	root.AddCommand(
		a.watchSetCmd(),
		a.shareLinkCmd(),
		a.serveCmd(),
		a.healthCmd(),
		a.versionCmd(),
	)
	return root
}

// init loads the config file and environment and builds the logger.
func (a *app) init() error {
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	debug := a.v.GetBool("debug")
	a.log = newLogger(a.stderr, debug)
	if debug {
		plugin.SetLogLevel(plugin.LogLevelDebug)
	}
	return nil
}

func newLogger(w io.Writer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

// clientConfig builds the client config from flags, environment and file.
func (a *app) clientConfig() *plugin.Config {
	cfg := plugin.DefaultConfig()
	cfg.SocketPath = a.v.GetString("socket")
	cfg.ClientName = "fsplugin-ctl"
	cfg.RequestTimeout = a.v.GetDuration("timeout")
	cfg.VerifyPeer = a.v.GetBool("verify-peer")
	cfg.EngineProcessName = a.v.GetString("engine-process")
	cfg.LogOutput = a.stderr
	return cfg
}

// withClient runs fn against a started client and stops it afterwards.
func (a *app) withClient(cfg *plugin.Config, fn func(c *plugin.FinderSyncClient) error) error {
	c, err := plugin.New(&logController{log: a.log}, cfg)
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}
	defer func() {
		if err := c.Stop(); err != nil {
			a.log.Warn("stop client", zap.Error(err))
		}
	}()
	return fn(c)
}

func explain(err error) error {
	if errors.Is(err, plugin.ErrRequestTimeout) {
		return fmt.Errorf("%w (is the sync engine running?)", err)
	}
	return err
}
