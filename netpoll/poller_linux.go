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

// Package netpoll is the driver's concrete readiness poller: an
// epoll-backed implementation that hands back the caller's own opaque
// uint64 key instead of an fd, plus a cross-goroutine Trigger/
// UrgentTrigger wakeup path built on an eventfd the way a kqueue poller
// wakes on an EVFILT_USER note.
package netpoll

import (
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event masks a ReadyEvent's Events field may carry.
const (
	InEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	OutEvents = unix.EPOLLOUT
	ErrEvents = unix.EPOLLERR | unix.EPOLLHUP
)

// MaxAsyncTasksAtOneTime bounds how many low-priority tasks are drained
// per wakeup so a burst of Trigger calls cannot starve readiness
// dispatch.
const MaxAsyncTasksAtOneTime = 256

// ReadyEvent is one readiness notification. Data is whatever uint64 the
// caller passed to Add*/Mod* when registering the fd — the driver's
// loop package stores an encoded token.Token there, but netpoll itself
// is agnostic to what the bits mean.
type ReadyEvent struct {
	Data   uint64
	Events uint32
}

// Poller is a single-goroutine epoll readiness poller with a
// cross-goroutine task-trigger side channel. All Add*/Mod*/Delete/Poll
// calls must come from the same goroutine; Trigger/UrgentTrigger are
// the only methods safe to call from elsewhere.
type Poller struct {
	fd     int
	wakeFD int

	wakeupCall int32

	asyncTaskQueue       *taskQueue // low priority
	urgentAsyncTaskQueue *taskQueue // high priority

	events []unix.EpollEvent
}

// OpenPoller instantiates an epoll instance plus its wakeup eventfd.
func OpenPoller() (p *Poller, err error) {
	p = new(Poller)
	if p.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	if p.wakeFD, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		_ = unix.Close(p.fd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	wakeEv := unix.EpollEvent{Events: unix.EPOLLIN}
	setData(&wakeEv, uint64(p.wakeFD))
	if err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, p.wakeFD, &wakeEv); err != nil {
		_ = unix.Close(p.wakeFD)
		_ = unix.Close(p.fd)
		return nil, os.NewSyscallError("epoll_ctl add wakefd", err)
	}

	p.asyncTaskQueue = newTaskQueue()
	p.urgentAsyncTaskQueue = newTaskQueue()
	p.events = make([]unix.EpollEvent, initEventsCap)
	return p, nil
}

// Close closes the epoll instance and its wakeup eventfd.
func (p *Poller) Close() error {
	err0 := unix.Close(p.wakeFD)
	err1 := unix.Close(p.fd)
	if err0 != nil {
		return os.NewSyscallError("close eventfd", err0)
	}
	if err1 != nil {
		return os.NewSyscallError("close epoll", err1)
	}
	return nil
}

// setData packs v into the epoll_data union. unix.EpollEvent mirrors
// C's `struct epoll_event { uint32_t events; epoll_data_t data; }
// __attribute__((packed))`, so Fd and Pad together are the 8 data
// bytes; treating their address as a *uint64 lets us store an
// arbitrary 64-bit key instead of just an fd.
func setData(ev *unix.EpollEvent, v uint64) {
	*(*uint64)(unsafe.Pointer(&ev.Fd)) = v
}

func getData(ev *unix.EpollEvent) uint64 {
	return *(*uint64)(unsafe.Pointer(&ev.Fd))
}

var wakeupBytes = func() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, 1)
	return b
}()

func (p *Poller) wake() error {
	if atomic.CompareAndSwapInt32(&p.wakeupCall, 0, 1) {
		if _, err := unix.Write(p.wakeFD, wakeupBytes); err != nil && err != unix.EAGAIN {
			return os.NewSyscallError("write eventfd", err)
		}
	}
	return nil
}

// UrgentTrigger enqueues fn onto the high-priority queue and wakes the
// poller if it is currently blocked in Poll. Use it for small,
// latency-sensitive work.
func (p *Poller) UrgentTrigger(fn TaskFunc, arg interface{}) error {
	t := getTask()
	t.Run, t.Arg = fn, arg
	p.urgentAsyncTaskQueue.enqueue(t)
	return p.wake()
}

// Trigger is like UrgentTrigger but enqueues onto the low-priority
// queue, for work that may legitimately backlog.
func (p *Poller) Trigger(fn TaskFunc, arg interface{}) error {
	t := getTask()
	t.Run, t.Arg = fn, arg
	p.asyncTaskQueue.enqueue(t)
	return p.wake()
}

// AddRead registers fd for readability under key data.
func (p *Poller) AddRead(fd int, data uint64) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN|unix.EPOLLRDHUP, data)
}

// AddWrite registers fd for writability under key data.
func (p *Poller) AddWrite(fd int, data uint64) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLOUT, data)
}

// AddReadWrite registers fd for both readability and writability under
// key data.
func (p *Poller) AddReadWrite(fd int, data uint64) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLOUT, data)
}

// ModRead drops write-interest, keeping only read-interest.
func (p *Poller) ModRead(fd int, data uint64) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN|unix.EPOLLRDHUP, data)
}

// ModReadWrite adds write-interest back alongside read-interest.
func (p *Poller) ModReadWrite(fd int, data uint64) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLOUT, data)
}

// Delete deregisters fd from the poller.
func (p *Poller) Delete(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (p *Poller) ctl(op int, fd int, events uint32, data uint64) error {
	ev := unix.EpollEvent{Events: events}
	setData(&ev, data)
	if err := unix.EpollCtl(p.fd, op, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

const initEventsCap = 128

// Poll blocks for at most timeout waiting for readiness, then returns
// the ready events (the wakeup eventfd's own readiness is filtered out
// and handled internally: any tasks enqueued via Trigger/UrgentTrigger
// are run before Poll returns). A zero timeout polls without blocking.
//
// Poll is meant to be called once per event-loop iteration: the
// iterate-process-commit cycle that owns the forever-loop lives in
// package loop, which calls Poll once per RunOnce.
func (p *Poller) Poll(timeout time.Duration) (ready []ReadyEvent, err error) {
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if timeout < 0 {
		ms = -1
	}

	n, err := unix.EpollWait(p.fd, p.events, ms)
	if n < 0 && err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, os.NewSyscallError("epoll_wait", err)
	}

	woke := false
	ready = make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		data := getData(&ev)
		if int(data) == p.wakeFD && ev.Events&unix.EPOLLIN != 0 {
			woke = true
			var buf [8]byte
			_, _ = unix.Read(p.wakeFD, buf[:])
			continue
		}
		mask := ev.Events
		if mask&ErrEvents != 0 {
			mask |= InEvents
		}
		ready = append(ready, ReadyEvent{Data: data, Events: mask})
	}

	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}

	if woke {
		atomic.StoreInt32(&p.wakeupCall, 0)
		if terr := p.drainTasks(); terr != nil {
			return ready, terr
		}
	}

	return ready, nil
}

func (p *Poller) drainTasks() error {
	for task := p.urgentAsyncTaskQueue.dequeue(); task != nil; task = p.urgentAsyncTaskQueue.dequeue() {
		err := task.Run(task.Arg)
		putTask(task)
		if err != nil {
			return err
		}
	}
	for i := 0; i < MaxAsyncTasksAtOneTime; i++ {
		task := p.asyncTaskQueue.dequeue()
		if task == nil {
			break
		}
		err := task.Run(task.Arg)
		putTask(task)
		if err != nil {
			return err
		}
	}
	return nil
}
