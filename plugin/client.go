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
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/srediag/fsplugin/adapter"
	"github.com/srediag/fsplugin/api"
	internalhealth "github.com/srediag/fsplugin/internal/health"
	"github.com/srediag/fsplugin/internal/lifecycle"
	"github.com/srediag/fsplugin/internal/logging"
	internalsecurity "github.com/srediag/fsplugin/internal/security"
	internaltransport "github.com/srediag/fsplugin/internal/transport"
	"github.com/srediag/fsplugin/pkg/protocol"
	"github.com/srediag/fsplugin/pkg/transport"
)

var (
	_ api.Plugin = (*FinderSyncClient)(nil)
	_ api.Health = (*FinderSyncClient)(nil)

	errConnectFailed = errors.New("connect failed")
	errReload        = errors.New("reload requested")
)

// engineHintTTL is how long a process probe result is reused.
const engineHintTTL = 10 * time.Second

type stateEvent struct {
	from, to api.ConnState
	stop     bool
}

// FinderSyncClient relays watch-set and share-link requests from the Finder
// extension to the sync engine and hands the answers to a Controller.
//
// Requests are queued and sent by a single dispatch goroutine, so calling any
// operation before a connection exists is safe: the request waits for a
// connection until Config.RequestTimeout. Controller callbacks run on a
// worker pool, never on the goroutine that reads from the engine.
type FinderSyncClient struct {
	controller api.Controller
	config     *Config
	clientID   string
	logger     *logging.Logger
	metrics    *clientMetrics
	otel       *adapter.OTel
	state      *lifecycle.Machine
	queue      *requestQueue
	events     *queuepkg.Queue
	callbacks  *ants.Pool

	// probe reports whether the engine process is running
	probe  func(ctx context.Context, name string) (bool, error)
	hintMu sync.Mutex
	hint   string
	hintAt time.Time

	mu      sync.Mutex
	sess    *session
	readyCh chan struct{}

	reconnectCh chan struct{}
	stopCh      chan struct{}
	eventsDone  chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool
}

// New returns a client that reports to controller. The controller is not
// owned by the client and must outlive it. A nil config uses DefaultConfig.
func New(controller api.Controller, config *Config) (*FinderSyncClient, error) {
	if controller == nil {
		return nil, fmt.Errorf("%w: nil controller", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	metrics, err := newClientMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	otel, err := adapter.NewOTel(config.MeterProvider, config.TracerProvider)
	if err != nil {
		return nil, fmt.Errorf("otel instruments: %w", err)
	}
	pool, err := ants.NewPool(config.CallbackWorkers)
	if err != nil {
		return nil, fmt.Errorf("callback pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &FinderSyncClient{
		controller:  controller,
		config:      config,
		clientID:    uuid.NewString(),
		logger:      logging.New("finder-sync", config.LogOutput),
		metrics:     metrics,
		otel:        otel,
		state:       lifecycle.NewMachine(),
		queue:       newRequestQueue(config.QueueCap),
		events:      queuepkg.New(16),
		callbacks:   pool,
		probe:       internalhealth.ProcessRunning,
		readyCh:     make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		eventsDone:  make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.state.Observe(func(from, to api.ConnState) {
		c.metrics.setState(to)
		_ = c.events.Put(stateEvent{from: from, to: to})
	})
	return c, nil
}

// Parent returns the controller the client reports to.
func (c *FinderSyncClient) Parent() api.Controller {
	return c.controller
}

// State returns the current connection state.
func (c *FinderSyncClient) State() api.ConnState {
	return c.state.State()
}

// Start starts the background goroutines and the first connection attempt.
// Calling it again is a no-op.
func (c *FinderSyncClient) Start() error {
	if c.stopped.Load() {
		return ErrClientStopped
	}
	c.startOnce.Do(func() {
		c.started.Store(true)
		c.wg.Add(2)
		go c.connectLoop()
		go c.dispatchLoop()
		go c.eventLoop()
		if c.config.WatchSetInterval > 0 {
			c.wg.Add(1)
			go c.pollLoop()
		}
		c.kickReconnect()
	})
	return nil
}

// Stop closes the connection and fails every queued or pending request with
// ErrClientStopped. It is safe to call more than once.
func (c *FinderSyncClient) Stop() error {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
		c.cancel()

		for _, req := range c.queue.dispose() {
			c.finish(req, result{err: ErrClientStopped})
		}
		c.metrics.queued.Set(0)

		c.mu.Lock()
		sess := c.sess
		c.sess = nil
		c.mu.Unlock()
		if sess != nil {
			sess.close(ErrClientStopped)
		}

		c.wg.Wait()
		c.state.Reset()
		if c.started.Load() {
			_ = c.events.Put(stateEvent{stop: true})
			<-c.eventsDone
		}
		c.events.Dispose()
		if err := c.callbacks.ReleaseTimeout(time.Second); err != nil {
			c.logger.Warnf("release callback pool: %v", err)
		}
	})
	return nil
}

// Reload drops the current connection, if any, and connects again.
func (c *FinderSyncClient) Reload() error {
	if c.stopped.Load() {
		return ErrClientStopped
	}
	if sess := c.currentSession(); sess != nil {
		c.connectionBecomeInvalid(sess, errReload)
		return nil
	}
	c.kickReconnect()
	return nil
}

// GetWatchSet asks the engine for the set of synced repos. The result is
// delivered with Controller.UpdateWatchSet, failures with Controller.RequestFailed.
func (c *FinderSyncClient) GetWatchSet() {
	c.submit(context.Background(), api.OpWatchSet, "", nil)
}

// DoSharedLink asks the engine for a share link of path. The result is
// delivered with Controller.ShowSharedLink, failures with Controller.RequestFailed.
func (c *FinderSyncClient) DoSharedLink(path string) {
	c.submit(context.Background(), api.OpSharedLink, path, nil)
}

// WatchSet is the synchronous form of GetWatchSet. The Controller is not called.
func (c *FinderSyncClient) WatchSet(ctx context.Context) ([]api.LocalRepo, error) {
	res := c.call(ctx, api.OpWatchSet, "")
	return res.repos, res.err
}

// SharedLink is the synchronous form of DoSharedLink. The Controller is not called.
func (c *FinderSyncClient) SharedLink(ctx context.Context, path string) (string, error) {
	res := c.call(ctx, api.OpSharedLink, path)
	return res.link, res.err
}

// Ping round-trips a ping frame through the engine.
func (c *FinderSyncClient) Ping(ctx context.Context) error {
	return c.call(ctx, api.OpPing, "").err
}

// LivenessCheck fails once the client has been stopped.
func (c *FinderSyncClient) LivenessCheck() error {
	if c.stopped.Load() {
		return ErrClientStopped
	}
	return nil
}

// ReadinessCheck fails while the client is not connected to the engine.
func (c *FinderSyncClient) ReadinessCheck() error {
	if err := c.LivenessCheck(); err != nil {
		return err
	}
	if c.State() == api.ConnConnected {
		return nil
	}
	if hint := c.engineHint(); hint != "" {
		return fmt.Errorf("%w: %s", ErrNotConnected, hint)
	}
	return ErrNotConnected
}

func (c *FinderSyncClient) call(ctx context.Context, op api.Operation, path string) result {
	ch := make(chan result, 1)
	c.submit(ctx, op, path, ch)
	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// submit queues a request. Any failure, including a rejected enqueue, goes
// through finish so it is reported exactly once.
func (c *FinderSyncClient) submit(ctx context.Context, op api.Operation, path string, ch chan result) {
	now := time.Now()
	req := &request{
		op:       op,
		path:     path,
		ctx:      ctx,
		deadline: now.Add(c.config.RequestTimeout),
		enqueued: now,
		result:   ch,
	}
	if d, ok := ctx.Deadline(); ok && d.Before(req.deadline) {
		req.deadline = d
		req.ctxDeadline = true
	}
	_, req.span = c.otel.StartSpan(ctx, "fsplugin."+string(op),
		attribute.String("fsplugin.op", string(op)),
		attribute.String("fsplugin.path", path),
	)

	if op == api.OpSharedLink && path == "" {
		c.finish(req, result{err: ErrInvalidPath})
		return
	}
	if c.stopped.Load() {
		c.finish(req, result{err: ErrClientStopped})
		return
	}
	if err := c.queue.put(req); err != nil {
		c.finish(req, result{err: err})
		return
	}
	c.metrics.queued.Set(float64(c.queue.len()))
}

// finish completes req once: it records metrics and hands the result to the
// caller or the Controller.
func (c *FinderSyncClient) finish(req *request, res result) {
	if !req.finished.CompareAndSwap(false, true) {
		return
	}
	c.metrics.observeRequest(req.op, res.err)
	c.otel.RecordRequest(req.ctx, string(req.op), time.Since(req.enqueued), res.err)
	adapter.EndSpan(req.span, res.err)
	if res.err != nil {
		internalLogger.Debugf("%s %q failed: %v", req.op, req.path, res.err)
	}

	if req.result != nil {
		req.result <- res
		return
	}
	task := func() { c.notify(req, res) }
	if err := c.callbacks.Submit(task); err != nil {
		// the pool is gone only after Stop drained every request
		internalLogger.Warnf("callback pool: %v", err)
		task()
	}
}

func (c *FinderSyncClient) notify(req *request, res result) {
	if res.err != nil {
		c.controller.RequestFailed(req.op, req.path, res.err)
		return
	}
	switch req.op {
	case api.OpWatchSet:
		c.controller.UpdateWatchSet(res.repos)
	case api.OpSharedLink:
		c.controller.ShowSharedLink(req.path, res.link)
	}
}

func (c *FinderSyncClient) dispatchLoop() {
	defer c.wg.Done()
	for {
		req, err := c.queue.pop()
		if err != nil {
			return
		}
		c.metrics.queued.Set(float64(c.queue.len()))
		c.dispatch(req)
	}
}

// dispatch sends req on the current session, waiting for one if needed. A
// request whose session breaks before it was written moves to the next one.
func (c *FinderSyncClient) dispatch(req *request) {
	pc := &pendingCall{req: req}
	for {
		sess, err := c.waitSession(req)
		if err != nil {
			c.finish(req, result{err: err})
			return
		}
		err = sess.send(pc)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrConnectionInvalid) {
			c.finish(req, result{err: err})
			return
		}
	}
}

func (c *FinderSyncClient) waitSession(req *request) (*session, error) {
	if err := req.ctx.Err(); err != nil {
		return nil, err
	}
	wait := time.Until(req.deadline)
	if wait <= 0 {
		return nil, req.timeoutErr()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		c.mu.Lock()
		sess, ready := c.sess, c.readyCh
		c.mu.Unlock()
		if sess != nil {
			return sess, nil
		}
		c.kickReconnect()
		select {
		case <-ready:
		case <-timer.C:
			return nil, req.timeoutErr()
		case <-req.ctx.Done():
			return nil, req.ctx.Err()
		case <-c.stopCh:
			return nil, ErrClientStopped
		}
	}
}

func (c *FinderSyncClient) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *FinderSyncClient) kickReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// connectLoop runs one backoff streak per kick until a session is up.
func (c *FinderSyncClient) connectLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectCh:
		}
		if c.currentSession() != nil {
			continue
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.config.ReconnectInitialInterval
		b.MaxInterval = c.config.ReconnectMaxInterval
		b.MaxElapsedTime = c.config.ReconnectMaxElapsed

		op := func() error {
			if c.stopped.Load() {
				return backoff.Permanent(ErrClientStopped)
			}
			if c.connect() {
				return nil
			}
			return errConnectFailed
		}
		notify := func(_ error, d time.Duration) {
			internalLogger.Debugf("reconnecting to %s in %s", c.config.SocketPath, d)
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil && !c.stopped.Load() {
			c.logger.Warnf("giving up connecting to %s: %v", c.config.SocketPath, err)
		}
	}
}

// connect dials the engine, performs the handshake and starts the receive
// loop. It reports whether a session was established.
func (c *FinderSyncClient) connect() bool {
	if c.stopped.Load() {
		return false
	}
	if err := c.state.Transition(api.ConnConnecting); err != nil {
		internalLogger.Warnf("connect: %v", err)
		return false
	}

	sess, err := c.dial()
	if err != nil {
		_ = c.state.Transition(api.ConnFailed)
		if hint := c.engineHint(); hint != "" {
			c.logger.Warnf("connect %s: %v (%s)", c.config.SocketPath, err, hint)
		} else {
			c.logger.Warnf("connect %s: %v", c.config.SocketPath, err)
		}
		return false
	}

	c.mu.Lock()
	if c.stopped.Load() {
		c.mu.Unlock()
		_ = sess.conn.Close()
		return false
	}
	c.sess = sess
	close(c.readyCh)
	_ = c.state.Transition(api.ConnConnected)
	c.wg.Add(1)
	c.mu.Unlock()

	go sess.recvLoop()
	c.logger.Infof("connected to %s at %s", sess.serverName, c.config.SocketPath)
	return true
}

func (c *FinderSyncClient) dial() (*session, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.ConnectTimeout)
	defer cancel()
	conn, err := transport.Dial(ctx, c.config.SocketPath, transport.Options{
		MaxFrameSize: c.config.MaxFrameSize,
		WriteTimeout: c.config.WriteTimeout,
		Socket: internaltransport.SocketOptions{
			SendBuffer: c.config.SendBuffer,
			RecvBuffer: c.config.RecvBuffer,
		},
		VerifyPeer: c.config.VerifyPeer,
		PeerUID:    c.config.EngineUID,
		OTel:       c.otel,
	})
	if err != nil {
		if errors.Is(err, internalsecurity.ErrUIDMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrPeerRejected, err)
		}
		return nil, err
	}
	sess := newSession(c, conn)
	if err := sess.handshake(ctx, protocol.Hello{ClientID: c.clientID, ClientName: c.config.ClientName}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return sess, nil
}

// connectionBecomeInvalid tears down sess, fails its pending requests and
// schedules a reconnect unless the client is stopped. Only the first call for
// the current session has an effect.
func (c *FinderSyncClient) connectionBecomeInvalid(sess *session, cause error) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		sess.close(fmt.Errorf("%w: %w", ErrConnectionInvalid, cause))
		return
	}
	c.sess = nil
	c.readyCh = make(chan struct{})
	stopped := c.stopped.Load()
	if !stopped {
		_ = c.state.Transition(api.ConnDisconnected)
	}
	c.mu.Unlock()

	sess.close(fmt.Errorf("%w: %w", ErrConnectionInvalid, cause))
	if stopped {
		return
	}
	c.metrics.reconnects.Inc()
	if errors.Is(cause, errReload) {
		c.logger.Infof("reloading connection to %s", c.config.SocketPath)
	} else {
		c.logger.Warnf("connection to %s became invalid: %v", c.config.SocketPath, cause)
	}
	c.kickReconnect()
}

// engineHint reports whether the configured engine process is running. The
// probe walks the process table, so its result is reused for engineHintTTL.
func (c *FinderSyncClient) engineHint() string {
	name := c.config.EngineProcessName
	if name == "" {
		return ""
	}
	c.hintMu.Lock()
	defer c.hintMu.Unlock()
	if !c.hintAt.IsZero() && time.Since(c.hintAt) < engineHintTTL {
		return c.hint
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.hint = ""
	if running, err := c.probe(ctx, name); err == nil && !running {
		c.hint = fmt.Sprintf("engine process %q is not running", name)
	}
	c.hintAt = time.Now()
	return c.hint
}

// eventLoop forwards state changes to the Controller in order.
func (c *FinderSyncClient) eventLoop() {
	defer close(c.eventsDone)
	for {
		items, err := c.events.Get(1)
		if err != nil || len(items) == 0 {
			return
		}
		ev, ok := items[0].(stateEvent)
		if !ok {
			continue
		}
		if ev.stop {
			return
		}
		internalLogger.Debugf("connection state %s -> %s", ev.from, ev.to)
		c.controller.ConnectionStateChanged(ev.to)
		if ev.to == api.ConnConnected && c.config.WatchSetInterval > 0 && !c.stopped.Load() {
			c.GetWatchSet()
		}
	}
}

func (c *FinderSyncClient) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.WatchSetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.State() == api.ConnConnected {
				c.GetWatchSet()
			}
		}
	}
}
