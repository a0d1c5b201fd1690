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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/fsplugin/api"
)

type QueueTestSuite struct {
	suite.Suite
}

func newTestRequest(op api.Operation, path string) *request {
	now := time.Now()
	return &request{op: op, path: path, ctx: context.Background(), deadline: now.Add(time.Second), enqueued: now}
}

func (s *QueueTestSuite) TestFIFO() {
	q := newRequestQueue(8)
	for _, p := range []string{"a", "b", "c"} {
		s.Require().NoError(q.put(newTestRequest(api.OpSharedLink, p)))
	}
	s.Equal(3, q.len())
	for _, p := range []string{"a", "b", "c"} {
		r, err := q.pop()
		s.Require().NoError(err)
		s.Equal(p, r.path)
	}
	s.Zero(q.len())
}

func (s *QueueTestSuite) TestFull() {
	q := newRequestQueue(2)
	s.Require().NoError(q.put(newTestRequest(api.OpWatchSet, "")))
	s.Require().NoError(q.put(newTestRequest(api.OpWatchSet, "")))
	s.ErrorIs(q.put(newTestRequest(api.OpWatchSet, "")), ErrQueueFull)

	_, err := q.pop()
	s.Require().NoError(err)
	s.NoError(q.put(newTestRequest(api.OpWatchSet, "")))
}

func (s *QueueTestSuite) TestDisposeWakesPop() {
	q := newRequestQueue(4)
	var wg sync.WaitGroup
	wg.Add(1)
	var popErr error
	go func() {
		defer wg.Done()
		_, popErr = q.pop()
	}()
	time.Sleep(20 * time.Millisecond)
	s.Empty(q.dispose())
	wg.Wait()
	s.ErrorIs(popErr, ErrClientStopped)
}

func (s *QueueTestSuite) TestDisposeReturnsUnsent() {
	q := newRequestQueue(4)
	s.Require().NoError(q.put(newTestRequest(api.OpWatchSet, "")))
	s.Require().NoError(q.put(newTestRequest(api.OpSharedLink, "/x")))

	left := q.dispose()
	s.Require().Len(left, 2)
	s.Equal(api.OpWatchSet, left[0].op)
	s.Equal("/x", left[1].path)

	s.Nil(q.dispose())
	s.ErrorIs(q.put(newTestRequest(api.OpWatchSet, "")), ErrClientStopped)
	_, err := q.pop()
	s.ErrorIs(err, ErrClientStopped)
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}
