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

package wrapper

import (
	"drv/channel"
	"drv/errors"
	"drv/loop"
	"drv/netpoll"
	"drv/token"
)

// cmdEID is the endpoint id the wrapper reserves for its own
// command-ingress channel, the one driven by the handle's Tx side.
const cmdEID token.EID = 0

// UserProxy is what a concrete proxy implements
// to plug into the wrapper. Attach/Detach receive the loop's control
// objects directly so the user proxy can register its own endpoints
// (a timer fd, a socket) alongside the wrapper's reserved eid 0; out is
// the channel to push R events to the paired Handle.
type UserProxy[T TxMessage[T], R RxMessage[R]] interface {
	Attach(ctrl *loop.AttachControl, out *channel.Sender[R]) error
	Process(ctrl *loop.ProcessControl) error
	ProcessRecvChannel(msg T) error
	Detach(ctrl *loop.DetachControl) error
}

// Proxy is what Create returns on the proxy side: a loop.Proxy ready
// for Driver.Attach, plus Discard for the case where it never will be.
// Go has no destructor Create's caller can rely on to unwind a pair
// that is built and then abandoned without attaching, so Discard is
// the explicit stand-in.
type Proxy[T TxMessage[T], R RxMessage[R]] interface {
	loop.Proxy

	// Discard releases a proxy/handle pair that was created but will
	// never be passed to Driver.Attach. It sends the paired Handle a
	// terminal Closed message and closes the channel, mirroring what
	// Detach would send on the way out of a loop the proxy never
	// actually entered.
	Discard()
}

// proxy implements loop.Proxy on behalf of a UserProxy[T, R], demuxing
// the base protocol out of the T/R message sets it is parameterized
// over.
type proxy[T TxMessage[T], R RxMessage[R]] struct {
	user    UserProxy[T, R]
	cmdRecv *channel.Receiver[T]
	out     *channel.Sender[R]
}

// Create builds a loop.Proxy/Handle pair: the proxy side implements
// loop.Proxy and is attached to a driver; the handle side is returned
// to application code to drive and observe it.
func Create[T TxMessage[T], R RxMessage[R]](user UserProxy[T, R]) (Proxy[T, R], *Handle[T, R], error) {
	txSend, txRecv, err := channel.New[T]()
	if err != nil {
		return nil, nil, err
	}
	rxSend, rxRecv, err := channel.New[R]()
	if err != nil {
		_ = txSend.Close()
		_ = txRecv.Close()
		return nil, nil, err
	}

	p := &proxy[T, R]{user: user, cmdRecv: txRecv, out: rxSend}
	h, err := newHandle[T, R](txSend, rxRecv)
	if err != nil {
		_ = txSend.Close()
		_ = txRecv.Close()
		_ = rxSend.Close()
		_ = rxRecv.Close()
		return nil, nil, err
	}
	return p, h, nil
}

func (p *proxy[T, R]) Discard() {
	_ = p.out.Send(fromBaseRx[R](BaseRx{Kind: Closed}))
	_ = p.out.Close()
	_ = p.cmdRecv.Close()
}

// Attach registers the command receiver, runs the user Attach, then
// sends Attached. On any failure it returns the error without calling
// user.Detach itself: a failed Attach still gets exactly one Detach
// call, made by the loop's own commitAdd failure path, not this one.
func (p *proxy[T, R]) Attach(ctrl *loop.AttachControl) error {
	if err := ctrl.Register(cmdEID, p.cmdRecv.Fd(), netpoll.InEvents); err != nil {
		return err
	}

	if err := p.user.Attach(ctrl, p.out); err != nil {
		return err
	}

	if err := p.out.Send(fromBaseRx[R](BaseRx{Kind: Attached})); err != nil {
		return err
	}
	return nil
}

func (p *proxy[T, R]) Process(ctrl *loop.ProcessControl) error {
	if ctrl.EID() != cmdEID {
		return p.user.Process(ctrl)
	}

	for {
		msg, err := p.cmdRecv.TryRecv()
		if err == errors.ErrEmpty {
			return nil
		}
		if err != nil {
			return err
		}

		if base, ok := msg.AsBase(); ok {
			if base == (BaseTx{}) {
				ctrl.Close()
			}
		}
		if err := p.user.ProcessRecvChannel(msg); err != nil {
			return err
		}
	}
}

// Detach calls the user detach, releases the command receiver's
// registration, then sends Detached followed by Closed — Go has no
// destructor the loop can invoke on entry drop, so both base
// notifications are folded into this one call, which the loop
// guarantees runs exactly once per proxy.
func (p *proxy[T, R]) Detach(ctrl *loop.DetachControl) error {
	userErr := p.user.Detach(ctrl)
	_ = ctrl.Deregister(cmdEID)

	if err := p.out.Send(fromBaseRx[R](BaseRx{Kind: Detached})); err != nil && err != errors.ErrDisconnected {
		userErr = combine(userErr, err)
	}
	if err := p.out.Send(fromBaseRx[R](BaseRx{Kind: Closed})); err != nil && err != errors.ErrDisconnected {
		userErr = combine(userErr, err)
	}
	_ = p.out.Close()

	return userErr
}

func combine(first, second error) error {
	if first != nil {
		return first
	}
	return second
}
