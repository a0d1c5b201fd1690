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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/fsplugin/api"
	"github.com/srediag/fsplugin/pkg/protocol"
	"github.com/srediag/fsplugin/pkg/transport"
)

// pendingCall is a request written to the engine and waiting for its reply.
// Whoever pops it from session.pending owns completing it.
type pendingCall struct {
	id    uint32
	req   *request
	timer *time.Timer
}

// session is one established connection to the engine. The connection is
// both the send endpoint and the receive endpoint of the client.
type session struct {
	client     *FinderSyncClient
	conn       *transport.Conn
	serverName string
	pending    cmap.ConcurrentMap[uint32, *pendingCall]
	nextID     atomic.Uint32
	closeOnce  sync.Once
	closed     atomic.Bool
}

func newSession(c *FinderSyncClient, conn *transport.Conn) *session {
	return &session{
		client:  c,
		conn:    conn,
		pending: cmap.NewWithCustomShardingFunction[uint32, *pendingCall](func(key uint32) uint32 { return key }),
	}
}

// handshake sends Hello and waits for HelloAck.
func (s *session) handshake(ctx context.Context, hello protocol.Hello) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
		defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	}
	if err := s.conn.WriteFrame(protocol.Frame{Command: protocol.CmdHello, Body: protocol.EncodeHello(hello)}); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	f, err := s.conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	switch f.Command {
	case protocol.CmdHelloAck:
		ack, err := protocol.DecodeHelloAck(f.Body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		s.serverName = ack.ServerName
		return nil
	case protocol.CmdError:
		re, err := protocol.DecodeError(f.Body)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, re)
	default:
		return fmt.Errorf("%w: got %s", ErrHandshakeFailed, f.Command)
	}
}

func (s *session) allocID() uint32 {
	for {
		// 0 is reserved for Hello
		if id := s.nextID.Add(1); id != 0 {
			return id
		}
	}
}

// send registers pc and writes its request frame. When it returns an error
// pc is not registered and the caller still owns the request.
func (s *session) send(pc *pendingCall) error {
	if s.closed.Load() {
		return ErrConnectionInvalid
	}
	pc.id = s.allocID()
	f := protocol.Frame{ID: pc.id}
	switch pc.req.op {
	case api.OpWatchSet:
		f.Command = protocol.CmdGetWatchSet
	case api.OpSharedLink:
		f.Command = protocol.CmdGetShareLink
		f.Body = protocol.EncodeString(pc.req.path)
	case api.OpPing:
		f.Command = protocol.CmdPing
	default:
		return fmt.Errorf("unknown operation %q", pc.req.op)
	}

	if limit := s.client.config.MaxFrameSize; uint32(len(f.Body)) > limit {
		return fmt.Errorf("%w: %d bytes, max %d", protocol.ErrFrameTooLarge, len(f.Body), limit)
	}

	pc.timer = time.AfterFunc(time.Until(pc.req.deadline), func() { s.expire(pc.id) })
	s.pending.Set(pc.id, pc)
	s.client.metrics.pending.Inc()
	// close may have drained pending before Set, and the timer may have
	// fired before it
	if s.closed.Load() || !time.Now().Before(pc.req.deadline) {
		if _, ok := s.pending.Pop(pc.id); ok {
			pc.timer.Stop()
			s.client.metrics.pending.Dec()
			if s.closed.Load() {
				return ErrConnectionInvalid
			}
			return pc.req.timeoutErr()
		}
		return nil
	}
	if err := s.conn.WriteFrame(f); err != nil {
		if _, ok := s.pending.Pop(pc.id); ok {
			pc.timer.Stop()
			s.client.metrics.pending.Dec()
			s.client.connectionBecomeInvalid(s, err)
			return fmt.Errorf("%w: %w", ErrConnectionInvalid, err)
		}
		// completed by close or expire already
		return nil
	}
	protocolLogger.Tracef("send %s id=%d len=%d", f.Command, f.ID, len(f.Body))
	return nil
}

func (s *session) expire(id uint32) {
	if pc, ok := s.pending.Pop(id); ok {
		s.client.metrics.pending.Dec()
		s.client.finish(pc.req, result{err: pc.req.timeoutErr()})
	}
}

// recvLoop reads replies until the connection fails.
func (s *session) recvLoop() {
	defer s.client.wg.Done()
	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			s.client.connectionBecomeInvalid(s, err)
			return
		}
		protocolLogger.Tracef("recv %s id=%d len=%d", f.Command, f.ID, len(f.Body))
		pc, ok := s.pending.Pop(f.ID)
		if !ok {
			internalLogger.Debugf("dropping reply %s id=%d with no pending request", f.Command, f.ID)
			continue
		}
		pc.timer.Stop()
		s.client.metrics.pending.Dec()
		s.client.finish(pc.req, decodeReply(pc.req, f))
	}
}

func decodeReply(req *request, f protocol.Frame) result {
	if f.Command == protocol.CmdError {
		re, err := protocol.DecodeError(f.Body)
		if err != nil {
			return result{err: fmt.Errorf("%w: %w", ErrUnexpectedReply, err)}
		}
		return result{err: re}
	}
	switch req.op {
	case api.OpWatchSet:
		if f.Command != protocol.CmdWatchSet {
			break
		}
		repos, err := protocol.DecodeWatchSet(f.Body)
		if err != nil {
			return result{err: fmt.Errorf("%w: %w", ErrUnexpectedReply, err)}
		}
		return result{repos: repos}
	case api.OpSharedLink:
		if f.Command != protocol.CmdShareLink {
			break
		}
		l, err := protocol.DecodeShareLink(f.Body)
		if err != nil {
			return result{err: fmt.Errorf("%w: %w", ErrUnexpectedReply, err)}
		}
		return result{link: l.Link}
	case api.OpPing:
		if f.Command == protocol.CmdPong {
			return result{}
		}
	}
	return result{err: fmt.Errorf("%w: %s for %s", ErrUnexpectedReply, f.Command, req.op)}
}

// close shuts the connection and fails every pending call with cause.
func (s *session) close(cause error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.Close()
		for item := range s.pending.IterBuffered() {
			if pc, ok := s.pending.Pop(item.Key); ok {
				pc.timer.Stop()
				s.client.metrics.pending.Dec()
				s.client.finish(pc.req, result{err: cause})
			}
		}
	})
}
