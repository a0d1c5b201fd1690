/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package plugin

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/fsplugin/pkg/protocol"
)

const (
	defaultClientName      = "finder-sync-extension"
	defaultConnectTimeout  = 3 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultWriteTimeout    = 5 * time.Second
	defaultQueueCap        = 1024
	defaultCallbackWorkers = 4
	defaultReconnectMin    = 200 * time.Millisecond
	defaultReconnectMax    = 10 * time.Second
	minMaxFrameSize        = 64
	maxMaxFrameSize        = 64 << 20
	// sun_path is 104 bytes on darwin, including the trailing NUL
	maxSocketPathLen = 103
)

// Config is used to tune the FinderSyncClient.
type Config struct {
	// SocketPath is the unix socket the sync engine listens on.
	SocketPath string

	// ClientName is sent to the engine in the Hello frame.
	ClientName string

	// ConnectTimeout bounds dialing plus the Hello handshake.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a request from enqueue to reply, including the
	// time spent waiting for a connection.
	RequestTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// QueueCap bounds the number of requests waiting to be sent.
	QueueCap uint32

	// CallbackWorkers is the size of the pool that runs Controller callbacks.
	CallbackWorkers int

	// MaxFrameSize bounds received frame bodies.
	MaxFrameSize uint32

	// ReconnectInitialInterval and ReconnectMaxInterval shape the exponential
	// backoff between connection attempts.
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration

	// ReconnectMaxElapsed stops a reconnect streak after this long; 0 retries
	// until the client is stopped. A later request starts a new streak.
	ReconnectMaxElapsed time.Duration

	// WatchSetInterval, when positive, refreshes the watch set periodically
	// and on every new connection.
	WatchSetInterval time.Duration

	// VerifyPeer rejects an engine not running as EngineUID.
	VerifyPeer bool

	// EngineUID is the uid the engine must run as when VerifyPeer is set. A
	// negative value means the user running the client.
	EngineUID int

	// SendBuffer and RecvBuffer set the socket buffer sizes, 0 keeps the default.
	SendBuffer int
	RecvBuffer int

	// EngineProcessName is the executable name of the sync engine. When set,
	// failed connects and readiness checks report whether it is running.
	EngineProcessName string

	// LogOutput is used to control the log destination.
	LogOutput io.Writer

	// Registerer receives the client's prometheus collectors, nil disables them.
	Registerer prometheus.Registerer

	// MeterProvider and TracerProvider default to no-op providers.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// DefaultSocketPath is the engine socket under the user's runtime directory.
func DefaultSocketPath() string {
	dir := xdg.RuntimeDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "seafile", "finder-sync.sock")
}

// DefaultConfig is used to return a default configuration
func DefaultConfig() *Config {
	return &Config{
		SocketPath:               DefaultSocketPath(),
		ClientName:               defaultClientName,
		ConnectTimeout:           defaultConnectTimeout,
		RequestTimeout:           defaultRequestTimeout,
		WriteTimeout:             defaultWriteTimeout,
		QueueCap:                 defaultQueueCap,
		CallbackWorkers:          defaultCallbackWorkers,
		MaxFrameSize:             protocol.DefaultMaxFrameSize,
		ReconnectInitialInterval: defaultReconnectMin,
		ReconnectMaxInterval:     defaultReconnectMax,
		VerifyPeer:               true,
		EngineUID:                -1,
		EngineProcessName:        "seaf-daemon",
		LogOutput:                os.Stdout,
	}
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.SocketPath == "" {
		return fmt.Errorf("%w: SocketPath is empty", ErrInvalidConfig)
	}
	if len(config.SocketPath) > maxSocketPathLen {
		return fmt.Errorf("%w: SocketPath longer than %d bytes", ErrInvalidConfig, maxSocketPathLen)
	}
	if config.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: ConnectTimeout must be positive", ErrInvalidConfig)
	}
	if config.RequestTimeout <= 0 {
		return fmt.Errorf("%w: RequestTimeout must be positive", ErrInvalidConfig)
	}
	if config.WriteTimeout < 0 {
		return fmt.Errorf("%w: WriteTimeout must not be negative", ErrInvalidConfig)
	}
	if config.QueueCap == 0 {
		return fmt.Errorf("%w: QueueCap must be positive", ErrInvalidConfig)
	}
	if config.CallbackWorkers <= 0 {
		return fmt.Errorf("%w: CallbackWorkers must be positive", ErrInvalidConfig)
	}
	if config.MaxFrameSize < minMaxFrameSize || config.MaxFrameSize > maxMaxFrameSize {
		return fmt.Errorf("%w: MaxFrameSize must be in [%d, %d]", ErrInvalidConfig, minMaxFrameSize, maxMaxFrameSize)
	}
	if n := helloSize(config.ClientName); n > int(config.MaxFrameSize) {
		return fmt.Errorf("%w: MaxFrameSize %d cannot carry the %d byte Hello", ErrInvalidConfig, config.MaxFrameSize, n)
	}
	if config.ReconnectInitialInterval <= 0 {
		return fmt.Errorf("%w: ReconnectInitialInterval must be positive", ErrInvalidConfig)
	}
	if config.ReconnectMaxInterval < config.ReconnectInitialInterval {
		return fmt.Errorf("%w: ReconnectMaxInterval is below ReconnectInitialInterval", ErrInvalidConfig)
	}
	if config.ReconnectMaxElapsed < 0 || config.WatchSetInterval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}
	if config.SendBuffer < 0 || config.RecvBuffer < 0 {
		return fmt.Errorf("%w: negative socket buffer size", ErrInvalidConfig)
	}
	return nil
}

// helloSize is the body size of the Hello frame sent by a client named name.
func helloSize(name string) int {
	return len(protocol.EncodeHello(protocol.Hello{ClientID: uuid.Nil.String(), ClientName: name}))
}
