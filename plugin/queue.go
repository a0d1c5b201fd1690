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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/fsplugin/api"
)

// request is one operation waiting to be sent to the engine.
type request struct {
	op       api.Operation
	path     string
	ctx      context.Context
	deadline time.Time
	// ctxDeadline is set when deadline came from ctx.
	ctxDeadline bool
	enqueued    time.Time
	span        trace.Span
	finished    atomic.Bool
	// result is nil for fire-and-forget requests, whose outcome goes to the Controller.
	result chan result
}

// timeoutErr is the error for a request whose deadline passed. A deadline
// taken from the caller's context also matches context.DeadlineExceeded.
func (r *request) timeoutErr() error {
	if r.ctxDeadline {
		return fmt.Errorf("%w: %w", ErrRequestTimeout, context.DeadlineExceeded)
	}
	return ErrRequestTimeout
}

type result struct {
	repos []api.LocalRepo
	link  string
	err   error
}

// requestQueue is a bounded FIFO in front of the dispatch loop.
type requestQueue struct {
	mu  sync.Mutex
	q   *queuepkg.Queue
	cap int64
}

func newRequestQueue(cap uint32) *requestQueue {
	return &requestQueue{
		q:   queuepkg.New(int64(cap)),
		cap: int64(cap),
	}
}

func (q *requestQueue) put(r *request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Disposed() {
		return ErrClientStopped
	}
	if q.q.Len() >= q.cap {
		return ErrQueueFull
	}
	if err := q.q.Put(r); err != nil {
		if errors.Is(err, queuepkg.ErrDisposed) {
			return ErrClientStopped
		}
		return err
	}
	return nil
}

// pop blocks until a request is available or the queue is disposed.
func (q *requestQueue) pop() (*request, error) {
	items, err := q.q.Get(1)
	if err != nil {
		if errors.Is(err, queuepkg.ErrDisposed) {
			return nil, ErrClientStopped
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrClientStopped
	}
	r, ok := items[0].(*request)
	if !ok {
		return nil, fmt.Errorf("invalid queue element type %T", items[0])
	}
	return r, nil
}

func (q *requestQueue) len() int {
	return int(q.q.Len())
}

// dispose wakes pop and returns the requests that were never sent.
func (q *requestQueue) dispose() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Disposed() {
		return nil
	}
	items := q.q.Dispose()
	out := make([]*request, 0, len(items))
	for _, it := range items {
		if r, ok := it.(*request); ok {
			out = append(out, r)
		}
	}
	return out
}
