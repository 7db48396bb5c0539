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
	"time"

	"github.com/petar/GoLLRB/llrb"
	perrors "github.com/pkg/errors"

	"drv/channel"
	"drv/debug"
	"drv/errors"
	"drv/logging"
	"drv/netpoll"
	"drv/stats"
	"drv/token"
)

// Command is what the loop receives on its own command-ingress
// channel, registered at (id=0, eid=0): attach a new proxy or
// terminate the loop.
type Command struct {
	Attach    Proxy
	Name      string
	Terminate bool
}

// pendingAttach pairs a staged proxy with its optional debug name.
type pendingAttach struct {
	proxy Proxy
	name  string
}

// idItem adapts token.ID to llrb.Item so the loop can track live ids in
// an ordered tree; its size is what the live-id stats gauge reports.
// Id allocation does not consult it (see nextID).
type idItem token.ID

func (a idItem) Less(than llrb.Item) bool {
	return a < than.(idItem)
}

// Loop is a single-goroutine reactor: one netpoll.Poller, a registry of
// attached proxies keyed by token.ID, an ordered set of live ids, and a
// counter for id allocation. All exported methods except the ones explicitly
// documented as cross-goroutine-safe must only be called from the
// goroutine that owns the Loop.
type Loop struct {
	poller  *netpoll.Poller
	cmdRecv *channel.Receiver[Command]

	entries map[token.ID]*entry
	ids     *llrb.LLRB
	lastID  token.ID

	toAdd    []pendingAttach
	toDel    []token.ID
	toCommit []token.ID

	exit bool

	stats    *stats.Stats
	registry *debug.Registry
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithStats wires s into the loop so every attach/detach/process is
// reported through an optional collector instead of unconditionally.
func WithStats(s *stats.Stats) Option {
	return func(l *Loop) {
		l.stats = s
	}
}

// WithRegistry wires r into the loop so every named proxy shows up in
// the debug HTTP surface's proxy listing as it attaches and detaches.
func WithRegistry(r *debug.Registry) Option {
	return func(l *Loop) {
		l.registry = r
	}
}

// New constructs a Loop polling cmdRecv at the reserved (0, 0) token.
func New(cmdRecv *channel.Receiver[Command], opts ...Option) (*Loop, error) {
	p, err := netpoll.OpenPoller()
	if err != nil {
		return nil, perrors.Wrap(err, "open poller")
	}
	tok, _ := token.Encode(0, 0) // token.Reserved, by construction
	if err := p.AddRead(cmdRecv.Fd(), uint64(tok)); err != nil {
		_ = p.Close()
		return nil, perrors.Wrap(err, "register command receiver")
	}
	l := &Loop{
		poller:  p,
		cmdRecv: cmdRecv,
		entries: make(map[token.ID]*entry),
		ids:     llrb.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// nextID hands out ids strictly increasing from the loop's own counter,
// not from the live set's current max: an id that detaches must never
// be handed to a later proxy while the loop is alive, even though the
// llrb tree of live ids shrinks back down once it is removed.
func (l *Loop) nextID() token.ID {
	l.lastID++
	return l.lastID
}

// RunForever drives RunOnce until a Terminate command is received or
// ctx is done, then releases every remaining entry via Close.
func (l *Loop) RunForever(ctx context.Context, timeout time.Duration) error {
	for !l.exit {
		if err := ctx.Err(); err != nil {
			l.exit = true
			break
		}
		if err := l.RunOnce(ctx, timeout); err != nil {
			logging.Warnf("loop: error occurs in event-loop: %v", err)
		}
	}
	return l.Close()
}

// RunOnce performs one poll/process/commit iteration: block for at
// most timeout for readiness, dispatch every ready event to its
// proxy's Process (or drain the command channel for id 0), then commit
// staged adds/rearms/removals in that order. It returns the first
// per-event error observed, if any; the rest are logged rather than
// aborting the iteration.
func (l *Loop) RunOnce(ctx context.Context, timeout time.Duration) error {
	ready, err := l.poller.Poll(timeout)
	if err != nil {
		return perrors.Wrap(err, "poll")
	}

	var firstErr error
	report := func(err error) {
		if err == nil {
			return
		}
		if firstErr == nil {
			firstErr = err
		} else {
			logging.Warnf("loop: error occurs in event-loop: %v", err)
		}
	}

	for _, rv := range ready {
		id, eid := token.Decode(token.Token(rv.Data))
		if id == 0 {
			if err := l.drainCommands(); err != nil {
				report(err)
				if err == errors.ErrDisconnected {
					l.exit = true
				}
			}
			continue
		}

		ent, ok := l.entries[id]
		if !ok {
			continue // already detached this iteration
		}
		report(l.dispatch(id, ent, eid, rv.Events))
	}

	l.commit()
	return firstErr
}

// dispatch checks ent's proxy out of the registry for the duration of
// the call — the checkout pattern — so a Process callback that
// reenters loop-owned state (via its ProcessControl) never observes or
// mutates its own entry half-updated.
func (l *Loop) dispatch(id token.ID, ent *entry, eid token.EID, readiness uint32) error {
	proxy := ent.proxy
	ent.proxy = nil

	pc := &ProcessControl{loop: l, id: id, ent: ent, eid: eid, readiness: readiness}
	start := time.Now()
	err := proxy.Process(pc)
	if l.stats != nil {
		l.stats.ObserveProcess(start, err)
	}

	ent.proxy = proxy

	if pc.IsClosed() {
		l.toDel = append(l.toDel, id)
	} else {
		l.toCommit = append(l.toCommit, id)
	}
	return err
}

// drainCommands empties the command channel, staging Attach proxies
// into toAdd and Terminate into the exit flag. It stops at Empty;
// Disconnected is fatal (the driver side is gone, nothing more will
// ever arrive).
func (l *Loop) drainCommands() error {
	for {
		cmd, err := l.cmdRecv.TryRecv()
		switch err {
		case nil:
		case errors.ErrEmpty:
			return nil
		default:
			return err
		}

		if cmd.Terminate {
			l.exit = true
			continue
		}
		if cmd.Attach != nil {
			l.toAdd = append(l.toAdd, pendingAttach{proxy: cmd.Attach, name: cmd.Name})
		}
	}
}

// commit drains toAdd, toCommit, then toDel, in that strict order, so
// a proxy staged for close in the same iteration it was added still
// gets a clean attach/detach pair.
func (l *Loop) commit() {
	for _, pa := range l.toAdd {
		l.commitAdd(pa.proxy, pa.name)
	}
	l.toAdd = l.toAdd[:0]

	for _, id := range l.toCommit {
		l.commitRearm(id)
	}
	l.toCommit = l.toCommit[:0]

	for _, id := range l.toDel {
		l.commitDel(id)
	}
	l.toDel = l.toDel[:0]
}

func (l *Loop) commitAdd(proxy Proxy, name string) {
	id := l.nextID()
	ent := newEntry()

	ac := &AttachControl{loop: l, id: id, ent: ent}
	err := proxy.Attach(ac)
	if err != nil || ac.IsClosed() {
		if err != nil {
			logging.Warnf("loop: attach failed for proxy %d: %v", id, err)
		}
		dc := &DetachControl{loop: l, id: id, ent: ent}
		if derr := proxy.Detach(dc); derr != nil {
			logging.Warnf("loop: detach after failed attach for proxy %d: %v", id, derr)
		}
		l.deregisterAll(ent)
		if l.stats != nil {
			l.stats.AttachFailed()
		}
		return
	}

	ent.proxy = proxy
	ent.name = name
	l.entries[id] = ent
	l.ids.ReplaceOrInsert(idItem(id))
	if name != "" && l.registry != nil {
		l.registry.Set(id, name)
	}
	if l.stats != nil {
		l.stats.Attached()
		l.stats.SetLiveIDs(l.ids.Len())
	}
}

// commitRearm clears the fresh flag on every endpoint touched this
// iteration. epoll's level-triggered default means no syscall is
// needed to "rearm" — the flag still flows through the same commit
// path as a future edge-triggered or one-shot poller would need.
func (l *Loop) commitRearm(id token.ID) {
	ent, ok := l.entries[id]
	if !ok {
		return
	}
	for _, pi := range ent.polls {
		pi.fresh = false
	}
}

func (l *Loop) commitDel(id token.ID) {
	ent, ok := l.entries[id]
	if !ok {
		return
	}
	dc := &DetachControl{loop: l, id: id, ent: ent}
	if err := ent.proxy.Detach(dc); err != nil {
		logging.Warnf("loop: detach failed for proxy %d: %v", id, err)
	}
	l.deregisterAll(ent)
	delete(l.entries, id)
	l.ids.Delete(idItem(id))
	if ent.name != "" && l.registry != nil {
		l.registry.Delete(id)
	}
	if l.stats != nil {
		l.stats.Detached()
		l.stats.SetLiveIDs(l.ids.Len())
	}
}

func (l *Loop) deregisterAll(ent *entry) {
	for _, pi := range ent.polls {
		if err := l.poller.Delete(pi.fd); err != nil {
			logging.Warnf("loop: deregister fd %d failed: %v", pi.fd, err)
		}
	}
}

// Close best-effort detaches every remaining entry so their handles
// eventually observe Disconnected, then releases the poller. Detach
// errors are logged, not returned: shutdown must make progress.
func (l *Loop) Close() error {
	for id, ent := range l.entries {
		dc := &DetachControl{loop: l, id: id, ent: ent}
		if err := ent.proxy.Detach(dc); err != nil {
			logging.Warnf("loop: detach during shutdown failed for proxy %d: %v", id, err)
		}
		l.deregisterAll(ent)
		delete(l.entries, id)
		if ent.name != "" && l.registry != nil {
			l.registry.Delete(id)
		}
	}
	l.ids = llrb.New()
	return l.poller.Close()
}
