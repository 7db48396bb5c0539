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
	"drv/errors"
	"drv/netpoll"
	"drv/token"
)

// pollInfo is the loop's bookkeeping for one registered endpoint:
// which fd backs it, what interest it was registered with, and whether
// that registration is "fresh" (registered or reregistered this
// iteration, awaiting re-arm in the commit phase).
type pollInfo struct {
	fd       int
	interest uint32
	fresh    bool
}

// entry is the loop's owning record for one live proxy: the proxy
// object itself (nil while "checked out" for a Process call, and nil
// until a staged proxy's Attach has succeeded) plus its poll-info map
// keyed by endpoint id.
type entry struct {
	proxy Proxy
	name  string
	polls map[token.EID]*pollInfo
}

func newEntry() *entry {
	return &entry{polls: make(map[token.EID]*pollInfo)}
}

// register is shared by AttachControl and ProcessControl: encode the
// token, hand it to the poller under the requested interest, and
// record the poll-info.
func (e *entry) register(p *netpoll.Poller, id token.ID, eid token.EID, fd int, interest uint32) error {
	tok, ok := token.Encode(id, eid)
	if !ok {
		return errors.ErrID
	}
	if _, exists := e.polls[eid]; exists {
		return errors.ErrID
	}
	if err := addToPoller(p, fd, uint64(tok), interest); err != nil {
		return err
	}
	e.polls[eid] = &pollInfo{fd: fd, interest: interest, fresh: true}
	return nil
}

func (e *entry) reregister(p *netpoll.Poller, id token.ID, eid token.EID, interest uint32) error {
	pi, ok := e.polls[eid]
	if !ok {
		return errors.ErrID
	}
	tok, ok := token.Encode(id, eid)
	if !ok {
		return errors.ErrID
	}
	if err := modPoller(p, pi.fd, uint64(tok), interest); err != nil {
		return err
	}
	pi.interest = interest
	pi.fresh = true
	return nil
}

func (e *entry) deregister(p *netpoll.Poller, eid token.EID) error {
	pi, ok := e.polls[eid]
	if !ok {
		return errors.ErrID
	}
	delete(e.polls, eid)
	return p.Delete(pi.fd)
}

func addToPoller(p *netpoll.Poller, fd int, data uint64, interest uint32) error {
	switch {
	case interest&netpoll.InEvents != 0 && interest&netpoll.OutEvents != 0:
		return p.AddReadWrite(fd, data)
	case interest&netpoll.OutEvents != 0:
		return p.AddWrite(fd, data)
	default:
		return p.AddRead(fd, data)
	}
}

func modPoller(p *netpoll.Poller, fd int, data uint64, interest uint32) error {
	if interest&netpoll.OutEvents != 0 {
		return p.ModReadWrite(fd, data)
	}
	return p.ModRead(fd, data)
}

// AttachControl is passed to Proxy.Attach and to the commit-phase
// attach of a freshly staged proxy. Register/Reregister/Deregister
// manage the proxy's endpoints; Close is advisory, observed by the
// loop after Attach returns to decide whether to keep the proxy.
type AttachControl struct {
	loop   *Loop
	id     token.ID
	ent    *entry
	closed bool
}

func (c *AttachControl) Register(eid token.EID, fd int, interest uint32) error {
	return c.ent.register(c.loop.poller, c.id, eid, fd, interest)
}

func (c *AttachControl) Reregister(eid token.EID, interest uint32) error {
	return c.ent.reregister(c.loop.poller, c.id, eid, interest)
}

func (c *AttachControl) Deregister(eid token.EID) error {
	return c.ent.deregister(c.loop.poller, eid)
}

// Close requests that the proxy not be kept after Attach returns; the
// loop will still call Detach so the proxy can unwind anything it
// registered.
func (c *AttachControl) Close() {
	c.closed = true
}

func (c *AttachControl) IsClosed() bool {
	return c.closed
}

// AsDetach builds a DetachControl sharing this AttachControl's entry,
// for the case where Attach must unwind and call Detach before the
// loop itself ever reaches its normal commit-phase detach path.
func (c *AttachControl) AsDetach() *DetachControl {
	return &DetachControl{loop: c.loop, id: c.id, ent: c.ent}
}

// DetachControl is passed to Proxy.Detach. It exposes the same
// registration surface as AttachControl (a proxy detaching mid-close
// may still want to deregister endpoints it owns) but has no Close,
// since a detaching proxy is already on its way out.
type DetachControl struct {
	loop *Loop
	id   token.ID
	ent  *entry
}

func (c *DetachControl) Register(eid token.EID, fd int, interest uint32) error {
	return c.ent.register(c.loop.poller, c.id, eid, fd, interest)
}

func (c *DetachControl) Reregister(eid token.EID, interest uint32) error {
	return c.ent.reregister(c.loop.poller, c.id, eid, interest)
}

func (c *DetachControl) Deregister(eid token.EID) error {
	return c.ent.deregister(c.loop.poller, eid)
}

// ProcessControl is passed to Proxy.Process for one readiness event. It
// additionally reports which endpoint fired and with what readiness,
// and exposes Close() for the proxy to request its own retirement.
type ProcessControl struct {
	loop      *Loop
	id        token.ID
	ent       *entry
	eid       token.EID
	readiness uint32
	closed    bool
}

func (c *ProcessControl) EID() token.EID {
	return c.eid
}

func (c *ProcessControl) Readiness() uint32 {
	return c.readiness
}

func (c *ProcessControl) Register(eid token.EID, fd int, interest uint32) error {
	return c.ent.register(c.loop.poller, c.id, eid, fd, interest)
}

func (c *ProcessControl) Reregister(eid token.EID, interest uint32) error {
	return c.ent.reregister(c.loop.poller, c.id, eid, interest)
}

func (c *ProcessControl) Deregister(eid token.EID) error {
	return c.ent.deregister(c.loop.poller, eid)
}

// Close requests that this proxy be retired after the current Process
// call returns, regardless of Process's own return value.
func (c *ProcessControl) Close() {
	c.closed = true
}

func (c *ProcessControl) IsClosed() bool {
	return c.closed
}
