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

package loop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"drv/channel"
	"drv/errors"
	"drv/logging"
)

// Driver owns the loop goroutine and exposes the sole public ingress:
// Attach. A pinned background goroutine runs the loop forever, paired
// with a wait/signal channel for a clean Close.
type Driver struct {
	cmdSend *channel.Sender[Command]

	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
}

// NewDriver constructs the command channel, spins up the loop goroutine
// (LockOSThread'd, since epoll fds and their eventfd side channel are
// only ever touched from this one goroutine) and returns a Driver ready
// to accept Attach calls. timeout bounds how long each RunOnce blocks
// waiting for readiness.
func NewDriver(timeout time.Duration, opts ...Option) (*Driver, error) {
	snd, rcv, err := channel.New[Command]()
	if err != nil {
		return nil, err
	}

	l, err := New(rcv, opts...)
	if err != nil {
		_ = snd.Close()
		return nil, err
	}

	d := &Driver{
		cmdSend: snd,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(d.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := l.RunForever(context.Background(), timeout); err != nil {
			logging.Errorf("loop: run-forever exited with error: %v", err)
		}
	}()

	return d, nil
}

// Attach stages p for addition to the loop on its next iteration. It
// fails with errors.ErrShutdown if the loop has already been asked to
// terminate.
func (d *Driver) Attach(p Proxy) error {
	return d.AttachNamed(p, "")
}

// AttachNamed is Attach plus a debug name: if the loop was constructed
// WithRegistry, name appears in the debug HTTP surface's proxy listing
// for as long as p stays attached. An empty name behaves like Attach.
func (d *Driver) AttachNamed(p Proxy, name string) error {
	if d.closing.Load() {
		return errors.ErrShutdown
	}
	err := d.cmdSend.Send(Command{Attach: p, Name: name})
	if err == errors.ErrDisconnected {
		return errors.ErrShutdown
	}
	return err
}

// Close asks the loop to terminate and waits for its goroutine to
// exit. It is idempotent.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		_ = d.cmdSend.Send(Command{Terminate: true})
	})
	<-d.done
	return d.cmdSend.Close()
}
