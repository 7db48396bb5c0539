package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok, ok := Encode(456, 123)
	require.True(t, ok)

	id, eid := Decode(tok)
	assert.Equal(t, ID(456), id)
	assert.Equal(t, EID(123), eid)
}

func TestReservedIsZeroZero(t *testing.T) {
	id, eid := Decode(Reserved)
	assert.Equal(t, ID(0), id)
	assert.Equal(t, EID(0), eid)
}

func TestEncodeFailsWhenIDTooWide(t *testing.T) {
	_, ok := Encode(1<<(64-EidBits), 0)
	assert.False(t, ok)
}

func TestEncodeFailsWhenEidTooWide(t *testing.T) {
	_, ok := Encode(0, 256)
	assert.False(t, ok)
}

func TestEncodeSucceedsAtBoundary(t *testing.T) {
	_, ok := Encode(MaxID, MaxEID)
	assert.True(t, ok)

	_, ok = Encode(MaxID+1, 0)
	assert.False(t, ok)

	_, ok = Encode(0, MaxEID+1)
	assert.False(t, ok)
}

func TestEncodeIsInjective(t *testing.T) {
	seen := make(map[Token]struct{})
	for id := ID(0); id < 64; id++ {
		for eid := EID(0); eid < 64; eid++ {
			tok, ok := Encode(id, eid)
			require.True(t, ok)
			_, dup := seen[tok]
			assert.False(t, dup, "token collision at id=%d eid=%d", id, eid)
			seen[tok] = struct{}{}
		}
	}
}
