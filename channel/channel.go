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

//go:build linux
// +build linux

// Package channel implements the multi-producer, single-consumer
// message queue the rest of the driver is built on: a typed Go queue
// behind a mutex, paired with an eventfd so the receive side is a real
// pollable file descriptor that drv/netpoll can register directly —
// the same role a connection's own fd plays when it registers itself
// with an event loop, but backing a Go channel instead of a socket.
package channel

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"drv/errors"
)

type state[T any] struct {
	mu    sync.Mutex
	queue []T

	senderCount    int32
	senderClosed   bool
	receiverClosed bool

	efd int
}

// Sender is the producer side of a channel. It may be cloned to give
// several goroutines independent producer handles sharing one queue.
type Sender[T any] struct {
	s *state[T]
}

// Receiver is the single-consumer side of a channel. Its Fd is
// registerable with a netpoll.Poller for readable interest.
type Receiver[T any] struct {
	s *state[T]
}

// New constructs a paired Sender/Receiver.
func New[T any]() (*Sender[T], *Receiver[T], error) {
	// EFD_SEMAPHORE: each read consumes exactly one count instead of
	// resetting the whole counter to zero, so drainOne below keeps the
	// eventfd's readiness in lock step with the queue length.
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, nil, err
	}
	st := &state[T]{senderCount: 1, efd: efd}
	return &Sender[T]{st}, &Receiver[T]{st}, nil
}

// Clone returns a new Sender handle to the same channel; the channel is
// only disconnected once every clone (including the original) has been
// closed.
func (s *Sender[T]) Clone() *Sender[T] {
	atomic.AddInt32(&s.s.senderCount, 1)
	return &Sender[T]{s.s}
}

// Send enqueues msg. It never blocks. It fails with
// errors.ErrDisconnected if the receive side is gone.
func (s *Sender[T]) Send(msg T) error {
	st := s.s
	st.mu.Lock()
	if st.receiverClosed {
		st.mu.Unlock()
		return errors.ErrDisconnected
	}
	st.queue = append(st.queue, msg)
	st.mu.Unlock()
	return st.ring()
}

// Close releases this Sender handle. Once the last clone is closed, the
// receiver observes errors.ErrDisconnected from TryRecv once the queue
// drains.
func (s *Sender[T]) Close() error {
	if atomic.AddInt32(&s.s.senderCount, -1) > 0 {
		return nil
	}
	st := s.s
	st.mu.Lock()
	st.senderClosed = true
	st.mu.Unlock()
	return st.ring()
}

// Fd is the receive side's pollable file descriptor.
func (r *Receiver[T]) Fd() int {
	return r.s.efd
}

// TryRecv returns the next queued message, errors.ErrEmpty if nothing
// is queued, or errors.ErrDisconnected if every Sender has closed and
// the queue has drained. It never blocks.
func (r *Receiver[T]) TryRecv() (T, error) {
	st := r.s
	var zero T

	st.mu.Lock()
	if len(st.queue) > 0 {
		msg := st.queue[0]
		st.queue[0] = zero
		st.queue = st.queue[1:]
		st.mu.Unlock()
		st.drainOne()
		return msg, nil
	}
	closed := st.senderClosed
	st.mu.Unlock()

	if closed {
		return zero, errors.ErrDisconnected
	}
	return zero, errors.ErrEmpty
}

// disconnected reports whether every Sender has closed and the queue
// has drained, without consuming anything — used by SinglePoll to
// classify a timed-out wait.
func (r *Receiver[T]) disconnected() bool {
	st := r.s
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.senderClosed && len(st.queue) == 0
}

// Close marks the receive side gone; subsequent Sends observe
// errors.ErrDisconnected and the eventfd is released.
func (r *Receiver[T]) Close() error {
	st := r.s
	st.mu.Lock()
	already := st.receiverClosed
	st.receiverClosed = true
	st.mu.Unlock()
	if already {
		return nil
	}
	return unix.Close(st.efd)
}

// ring bumps the eventfd counter by one so a registered poller observes
// read-readiness; EAGAIN (counter would overflow, astronomically
// unlikely at realistic queue depths) is not an error worth surfacing.
func (st *state[T]) ring() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(st.efd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// drainOne decrements the eventfd counter by one, keeping it in lock
// step with the number of unconsumed messages so a level-triggered
// poller stops reporting readiness once TryRecv has drained the queue.
func (st *state[T]) drainOne() {
	var buf [8]byte
	_, _ = unix.Read(st.efd, buf[:])
}
