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

// Package debug is the driver's optional HTTP introspection surface:
// a concurrent proxy-name registry read from an HTTP goroutine while
// the loop goroutine writes it — the one legitimate place in this
// codebase for a lock-free concurrent map instead of the loop's own
// single-goroutine bookkeeping.
package debug

import (
	"github.com/cornelk/hashmap"

	"drv/token"
)

// Registry names live proxies by id. The loop goroutine calls
// Set/Delete as proxies attach and detach; the debug HTTP surface
// calls Snapshot to list them, concurrently, from its own goroutine.
type Registry struct {
	m hashmap.HashMap
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set records name for id, overwriting any previous name.
func (r *Registry) Set(id token.ID, name string) {
	r.m.Set(uint64(id), name)
}

// Delete removes id's name, if any.
func (r *Registry) Delete(id token.ID) {
	r.m.Del(uint64(id))
}

// Snapshot copies every currently registered (id, name) pair.
func (r *Registry) Snapshot() map[uint64]string {
	out := make(map[uint64]string)
	for kv := range r.m.Iter() {
		id, ok := kv.Key.(uint64)
		if !ok {
			continue
		}
		name, ok := kv.Value.(string)
		if !ok {
			continue
		}
		out[id] = name
	}
	return out
}
