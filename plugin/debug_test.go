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
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/fsplugin/api"
)

type DebugTestSuite struct {
	suite.Suite
}

func (s *DebugTestSuite) TearDownTest() {
	SetLogLevel(LogLevelWarn)
}

func (s *DebugTestSuite) TestLogColor() {
	SetLogLevel(LogLevelTrace)

	internalLogger.Tracef("this is tracef %s", "hello world")
	internalLogger.Debugf("this is debugf %s", "hello world")
	internalLogger.Infof("this is infof %s", "hello world")
	internalLogger.Warnf("this is warnf %s", "hello world")
	internalLogger.Errorf("this is errorf %s", "hello world")
	internalLogger.Error("this is error")
	protocolLogger.Tracef("send %s id=%d", "GetWatchSet", 1)
}

func (s *DebugTestSuite) TestClientDetail() {
	SetLogLevel(LogLevelInfo)
	var out bytes.Buffer
	cfg := testConfig("/tmp/fsp-debug.sock")
	cfg.LogOutput = &out
	c, err := New(api.NopController{}, cfg)
	s.Require().NoError(err)
	defer func() { _ = c.Stop() }()

	c.GetWatchSet()
	DebugClientDetail(c)
	s.Contains(out.String(), "state:   disconnected")
	s.Contains(out.String(), "queued:  1")
	s.Contains(out.String(), "/tmp/fsp-debug.sock")
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}
