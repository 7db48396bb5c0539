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

// Package wrapper pairs a user-defined proxy with a user-defined
// foreground handle over two typed channels, layering the base
// attach/detach/close protocol underneath whatever message types the
// user chooses, via small capability interfaces instead of a concrete
// struct so the loop can host an arbitrary proxy type.
package wrapper

// BaseRxKind tags the three messages the wrapper proxy may send to its
// handle independent of any user message.
type BaseRxKind int

const (
	// Attached is sent once, right after the proxy's user Attach
	// callback succeeds.
	Attached BaseRxKind = iota
	// Detached is sent once, right after the proxy's user Detach
	// callback returns (error or not).
	Detached
	// Closed is sent once, immediately after Detached (or on its own by
	// Discard, for a proxy that was never attached), and is the last
	// message a handle ever observes before Process starts returning
	// errors.ErrClosed.
	Closed
)

// BaseRx is the proxy-to-handle base message.
type BaseRx struct {
	Kind BaseRxKind
}

// BaseTx is the handle-to-proxy base message. It has exactly one
// variant — a close request — so it carries no payload.
type BaseTx struct{}

// TxMessage is the "total coercion" a handle-to-proxy message type T
// must support: AsBase reports whether a given T is (or also
// represents) the base close request; FromBaseTx constructs a T that
// carries one. Implemented on T's zero value, Go's stand-in for a
// From<BaseTx> bound since there is no static dispatch on a type
// parameter alone.
type TxMessage[T any] interface {
	AsBase() (BaseTx, bool)
	FromBaseTx(BaseTx) T
}

// RxMessage is the proxy-to-handle equivalent of TxMessage.
type RxMessage[R any] interface {
	AsBase() (BaseRx, bool)
	FromBaseRx(BaseRx) R
}

func fromBaseRx[R RxMessage[R]](b BaseRx) R {
	var zero R
	return zero.FromBaseRx(b)
}

func fromBaseTx[T TxMessage[T]](b BaseTx) T {
	var zero T
	return zero.FromBaseTx(b)
}
