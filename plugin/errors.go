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
	"errors"

	"github.com/srediag/fsplugin/pkg/protocol"
)

var (
	// ErrClientStopped is returned for requests made after, or pending at, Stop.
	ErrClientStopped = errors.New("finder sync client stopped")
	// ErrNotConnected is reported by the readiness check while no session exists.
	ErrNotConnected = errors.New("not connected to the sync engine")
	// ErrConnectionInvalid fails requests whose connection went away before a reply.
	ErrConnectionInvalid = errors.New("connection to the sync engine became invalid")
	// ErrRequestTimeout is returned when a request is not answered in time.
	ErrRequestTimeout = errors.New("request to the sync engine timed out")
	// ErrQueueFull is returned when too many requests are waiting to be sent.
	ErrQueueFull = errors.New("request queue is full")
	// ErrInvalidPath is returned for an empty share-link path.
	ErrInvalidPath = errors.New("invalid path")
	// ErrHandshakeFailed is returned when the engine does not answer Hello.
	ErrHandshakeFailed = errors.New("handshake with the sync engine failed")
	// ErrPeerRejected is returned when the socket is owned by another user.
	ErrPeerRejected = errors.New("sync engine peer rejected")
	// ErrUnexpectedReply is returned when a reply does not match its request.
	ErrUnexpectedReply = errors.New("unexpected reply from the sync engine")
	// ErrInvalidConfig is returned by VerifyConfig.
	ErrInvalidConfig = errors.New("invalid config")
)

// RemoteError is the error type reported by the engine.
type RemoteError = protocol.RemoteError
