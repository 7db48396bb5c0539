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
	"time"

	"drv/channel"
	"drv/errors"
)

// Handle is the foreground side of a wrapper pair: application code
// calls Process to drain events from the proxy and Close/Release to
// ask the proxy to retire. A Handle is single-owner; it is not safe
// for concurrent use from multiple goroutines.
type Handle[T TxMessage[T], R RxMessage[R]] struct {
	tx   *channel.Sender[T]
	rx   *channel.Receiver[R]
	poll *channel.PollReceiver[R]

	closed    bool
	closeSent bool
}

func newHandle[T TxMessage[T], R RxMessage[R]](tx *channel.Sender[T], rx *channel.Receiver[R]) (*Handle[T, R], error) {
	pr, err := channel.NewPollReceiver(rx)
	if err != nil {
		return nil, err
	}
	return &Handle[T, R]{tx: tx, rx: rx, poll: pr}, nil
}

// Process waits up to timeout for the first event, then drains
// whatever else is already queued without waiting again, invoking
// onMessage for each (including base Attached/Detached/Closed
// messages, which still satisfy R via FromBaseRx). It returns nil if
// nothing arrived within timeout, the first error onMessage returns,
// or errors.ErrClosed once the terminal Closed message has been
// delivered — after which every subsequent call returns
// errors.ErrClosed immediately.
func (h *Handle[T, R]) Process(timeout time.Duration, onMessage func(R) error) error {
	if h.closed {
		return errors.ErrClosed
	}

	first, err := h.poll.Recv(timeout)
	disconnected := false
	switch err {
	case nil:
	case errors.ErrDisconnected:
		disconnected = true
	case errors.ErrEmpty:
		return nil
	default:
		return err
	}

	var pending []R
	if !disconnected {
		pending = append(pending, first)
		for {
			msg, rerr := h.rx.TryRecv()
			if rerr == nil {
				pending = append(pending, msg)
				continue
			}
			if rerr == errors.ErrDisconnected {
				disconnected = true
			} else if rerr != errors.ErrEmpty {
				return rerr
			}
			break
		}
	}

	for _, msg := range pending {
		var cbErr error
		if onMessage != nil {
			cbErr = onMessage(msg)
		}
		if base, ok := msg.AsBase(); ok && base.Kind == Closed {
			h.closed = true
			if cbErr != nil {
				return cbErr
			}
			return errors.ErrClosed
		}
		if cbErr != nil {
			return cbErr
		}
	}

	if disconnected {
		h.closed = true
		return errors.ErrClosed
	}
	return nil
}

// Send pushes a user message to the proxy. It fails with
// errors.ErrClosed once Close has already been sent or the proxy is
// already known gone.
func (h *Handle[T, R]) Send(msg T) error {
	if h.closed || h.closeSent {
		return errors.ErrClosed
	}
	err := h.tx.Send(msg)
	if err == errors.ErrDisconnected {
		h.closed = true
		return errors.ErrClosed
	}
	return err
}

// Close sends a base close request to the proxy. It is idempotent:
// repeat calls, and calls made after the proxy is already gone, return
// errors.ErrClosed rather than sending a second request.
func (h *Handle[T, R]) Close() error {
	if h.closed || h.closeSent {
		return errors.ErrClosed
	}
	h.closeSent = true

	err := h.tx.Send(fromBaseTx[T](BaseTx{}))
	if err == errors.ErrDisconnected {
		h.closed = true
		return errors.ErrClosed
	}
	return err
}

// Release performs a best-effort Close and releases this Handle's own
// resources (its private poller, its channel ends). Call it when
// dropping a Handle without having driven it to a Closed message.
func (h *Handle[T, R]) Release() {
	_ = h.Close()
	_ = h.poll.Close()
	_ = h.rx.Close()
	_ = h.tx.Close()
}

// IsClosed reports whether this Handle has observed the terminal
// Closed message or otherwise found the proxy side gone.
func (h *Handle[T, R]) IsClosed() bool {
	return h.closed
}
