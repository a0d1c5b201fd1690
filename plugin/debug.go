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
	"os"
	"strings"

	"github.com/srediag/fsplugin/internal/logging"
)

var (
	internalLogger = logging.New("", os.Stdout)
	protocolLogger = logging.New("protocol trace", os.Stdout)
)

// Log levels accepted by SetLogLevel.
const (
	LogLevelTrace   = logging.LevelTrace
	LogLevelDebug   = logging.LevelDebug
	LogLevelInfo    = logging.LevelInfo
	LogLevelWarn    = logging.LevelWarn
	LogLevelError   = logging.LevelError
	LogLevelNoPrint = logging.LevelNoPrint
)

// SetLogLevel used to change the internal logger's level and the default level is Warning.
// The process env `FSPLUGIN_LOG_LEVEL` also could set log level
func SetLogLevel(l int) {
	logging.SetLevel(l)
}

// DebugClientDetail prints the client's connection state and queues to its log output.
func DebugClientDetail(c *FinderSyncClient) {
	var b strings.Builder
	fmt.Fprintf(&b, "client %s\n", c.clientID)
	fmt.Fprintf(&b, "  socket:  %s\n", c.config.SocketPath)
	fmt.Fprintf(&b, "  state:   %s\n", c.State())
	fmt.Fprintf(&b, "  queued:  %d\n", c.queue.len())
	if sess := c.currentSession(); sess != nil {
		fmt.Fprintf(&b, "  engine:  %s\n", sess.serverName)
		fmt.Fprintf(&b, "  pending: %d\n", sess.pending.Count())
	} else {
		fmt.Fprintf(&b, "  pending: 0\n")
	}
	c.logger.Infof("%s", b.String())
}
