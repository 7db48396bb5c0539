// Copyright (c) 2024 The drv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors defines the sentinel error kinds shared by every
// component of the driver. Components return these values unwrapped,
// and callers inside the driver compare them with ==.
package errors

import "errors"

var (
	// ErrIO occurs when the underlying poller or a registered handle
	// returned a platform error.
	ErrIO = errors.New("i/o error")

	// ErrID occurs when a proxy or endpoint id is duplicate, missing, or
	// cannot be encoded into a token.
	ErrID = errors.New("invalid id")

	// ErrDisconnected occurs when the peer side of a channel is gone.
	ErrDisconnected = errors.New("channel disconnected")

	// ErrEmpty occurs when a non-blocking receive or a zero-timeout wait
	// found nothing ready; it is not a failure.
	ErrEmpty = errors.New("channel empty")

	// ErrClosed occurs when an operation is attempted on a handle or
	// proxy whose close has already been processed.
	ErrClosed = errors.New("already closed")

	// ErrShutdown occurs when the driver is in the process of shutting
	// down and can no longer accept new proxies.
	ErrShutdown = errors.New("driver is shutting down")
)
