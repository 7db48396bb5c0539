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

// Package token packs the (proxy id, endpoint id) pair the event loop
// dispatches on into a single opaque key suitable for a readiness
// poller. The poller's key space is flat; this two-level namespacing
// lets the loop route a readiness event to its owning proxy in O(1)
// without a side table.
package token

import "math/bits"

// ID names a proxy within its event loop. 0 is reserved for the loop's
// own command-ingress channel. Ids are assigned monotonically by the
// loop and are never reused while the loop is alive.
type ID uint64

// EID names one registered handle inside a proxy. Eid 0 is reserved by
// the wrapper for its command receiver; user handles use disjoint,
// proxy-local values.
type EID uint32

// Token is the poller's opaque key, encoding (ID, EID).
type Token uint64

// EidBits is the width, in bits, of the Eid field within a Token. 8 bits
// (255 endpoints per proxy) is plenty for the base protocol's one
// reserved endpoint plus any realistic number of user handles; widen it
// if a proxy needs more.
const EidBits = 8

const (
	eidMask = 1<<EidBits - 1
	idBits  = 64 - EidBits
	idMask  = 1<<idBits - 1
)

// Reserved is the token for (0, 0), used by the loop to recognize its
// own command-ingress readiness event.
const Reserved Token = 0

// Encode packs id and eid into a Token. It fails (ok == false) if id
// occupies more than 64-EidBits bits or eid exceeds 2^EidBits-1 — the
// two components no longer round-trip through Decode.
func Encode(id ID, eid EID) (t Token, ok bool) {
	if uint64(id) > idMask {
		return 0, false
	}
	if eid > eidMask {
		return 0, false
	}
	return Token(uint64(id)<<EidBits | uint64(eid)), true
}

// Decode unpacks a Token into its (ID, EID) pair. It is always defined:
// every uint64 decodes to some pair, though only tokens produced by
// Encode are meaningful to the loop.
func Decode(t Token) (ID, EID) {
	return ID(uint64(t) >> EidBits), EID(uint64(t) & eidMask)
}

// MaxID is the largest ID encodable with the current EidBits.
const MaxID = ID(idMask)

// MaxEID is the largest EID encodable with the current EidBits.
const MaxEID = EID(eidMask)

// BitLen reports how many bits id actually needs, for diagnostics.
func (id ID) BitLen() int {
	return bits.Len64(uint64(id))
}
