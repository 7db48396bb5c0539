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

// Package loop is the driver's event loop: a single-goroutine reactor
// owning a netpoll.Poller and a registry of attached proxies, dispatched
// through a two-phase process/commit cycle so a proxy may register,
// reregister or close itself mid-dispatch without corrupting the
// registry it is currently being called from.
package loop

// Proxy is the capability interface the loop dispatches through. A
// concrete proxy type (almost always wrapper.proxy[T,R], but nothing
// here requires that) is attached via Driver.Attach/Command{Attach:...}
// and is driven exclusively from the loop goroutine.
type Proxy interface {
	// Attach is called once, after the loop has assigned this proxy a
	// token.ID, before any Process call. Returning an error, or calling
	// ctrl.Close(), aborts the attach: Detach is still called so the
	// proxy can release anything it registered.
	Attach(ctrl *AttachControl) error

	// Process is called once per readiness event addressed to this
	// proxy's id, for whichever endpoint id the event is for. Returning
	// an error is reported by RunOnce but does not by itself close the
	// proxy; calling ctrl.Close() retires it regardless of the returned
	// error.
	Process(ctrl *ProcessControl) error

	// Detach is called exactly once, when the proxy is being retired
	// (after Process requested a close, or during Loop.Close). Errors
	// are logged, not propagated: detach must make progress so shutdown
	// can complete.
	Detach(ctrl *DetachControl) error
}
