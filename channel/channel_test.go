//go:build linux
// +build linux

package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drv/errors"
)

func TestSendRecvOrder(t *testing.T) {
	snd, rcv, err := New[int]()
	require.NoError(t, err)
	defer rcv.Close()
	defer snd.Close()

	require.NoError(t, snd.Send(1))
	require.NoError(t, snd.Send(2))
	require.NoError(t, snd.Send(3))

	for _, want := range []int{1, 2, 3} {
		got, err := rcv.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = rcv.TryRecv()
	assert.ErrorIs(t, err, errors.ErrEmpty)
}

func TestTryRecvDisconnectedAfterSenderClose(t *testing.T) {
	snd, rcv, err := New[string]()
	require.NoError(t, err)
	defer rcv.Close()

	require.NoError(t, snd.Send("hi"))
	require.NoError(t, snd.Close())

	got, err := rcv.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = rcv.TryRecv()
	assert.ErrorIs(t, err, errors.ErrDisconnected)
}

func TestSendFailsAfterReceiverClosed(t *testing.T) {
	snd, rcv, err := New[int]()
	require.NoError(t, err)
	defer snd.Close()

	require.NoError(t, rcv.Close())

	err = snd.Send(1)
	assert.ErrorIs(t, err, errors.ErrDisconnected)
}

func TestClonedSenderKeepsChannelOpenUntilAllClosed(t *testing.T) {
	snd, rcv, err := New[int]()
	require.NoError(t, err)
	defer rcv.Close()

	clone := snd.Clone()
	require.NoError(t, snd.Close())

	require.NoError(t, clone.Send(7))
	require.NoError(t, clone.Close())

	got, err := rcv.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = rcv.TryRecv()
	assert.ErrorIs(t, err, errors.ErrDisconnected)
}

func TestSinglePollWaitObservesReadiness(t *testing.T) {
	snd, rcv, err := New[int]()
	require.NoError(t, err)
	defer rcv.Close()
	defer snd.Close()

	sp, err := NewSinglePoll(rcv)
	require.NoError(t, err)
	defer sp.Close()

	ev, err := sp.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, Empty, ev)

	require.NoError(t, snd.Send(42))

	ev, err = sp.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, Ok, ev)

	got, err := rcv.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestSinglePollWaitNeverBlocksOnZeroTimeout(t *testing.T) {
	_, rcv, err := New[int]()
	require.NoError(t, err)
	defer rcv.Close()

	sp, err := NewSinglePoll(rcv)
	require.NoError(t, err)
	defer sp.Close()

	start := time.Now()
	ev, err := sp.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, Empty, ev)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPollReceiverRecvComposesTryRecvAndWait(t *testing.T) {
	snd, rcv, err := New[string]()
	require.NoError(t, err)
	defer rcv.Close()

	pr, err := NewPollReceiver(rcv)
	require.NoError(t, err)
	defer pr.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = snd.Send("delayed")
		_ = snd.Close()
	}()

	got, err := pr.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "delayed", got)

	_, err = pr.Recv(time.Second)
	assert.ErrorIs(t, err, errors.ErrDisconnected)
}
