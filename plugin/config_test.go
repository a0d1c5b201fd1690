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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, VerifyConfig(cfg))
	assert.True(t, strings.HasSuffix(cfg.SocketPath, "finder-sync.sock"))
	assert.True(t, cfg.VerifyPeer)
}

func TestVerifyConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty socket path", func(c *Config) { c.SocketPath = "" }},
		{"long socket path", func(c *Config) { c.SocketPath = "/" + strings.Repeat("s", maxSocketPathLen) }},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }},
		{"zero queue cap", func(c *Config) { c.QueueCap = 0 }},
		{"zero callback workers", func(c *Config) { c.CallbackWorkers = 0 }},
		{"tiny frame size", func(c *Config) { c.MaxFrameSize = 8 }},
		{"huge frame size", func(c *Config) { c.MaxFrameSize = 1 << 30 }},
		{"frame size below hello", func(c *Config) { c.MaxFrameSize = minMaxFrameSize }},
		{"client name beyond frame size", func(c *Config) {
			c.MaxFrameSize = 128
			c.ClientName = strings.Repeat("n", 100)
		}},
		{"zero reconnect interval", func(c *Config) { c.ReconnectInitialInterval = 0 }},
		{"max below initial", func(c *Config) { c.ReconnectMaxInterval = c.ReconnectInitialInterval / 2 }},
		{"negative max elapsed", func(c *Config) { c.ReconnectMaxElapsed = -1 }},
		{"negative poll interval", func(c *Config) { c.WatchSetInterval = -1 }},
		{"negative send buffer", func(c *Config) { c.SendBuffer = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, VerifyConfig(cfg), ErrInvalidConfig)
		})
	}
	assert.ErrorIs(t, VerifyConfig(nil), ErrInvalidConfig)
}

func TestHelloFitsFrameSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFrameSize = uint32(helloSize(cfg.ClientName))
	assert.NoError(t, VerifyConfig(cfg))

	cfg.MaxFrameSize--
	assert.ErrorIs(t, VerifyConfig(cfg), ErrInvalidConfig)
	assert.Equal(t, 65, helloSize(defaultClientName))
}
