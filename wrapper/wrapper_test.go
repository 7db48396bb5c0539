package wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drv/channel"
	"drv/errors"
	"drv/loop"
)

// testTx is the handle-to-proxy message type used by these tests: a
// user payload alongside the one base variant (close).
type testTx struct {
	base    bool
	payload string
}

func (t testTx) AsBase() (BaseTx, bool) {
	if t.base {
		return BaseTx{}, true
	}
	return BaseTx{}, false
}

func (t testTx) FromBaseTx(BaseTx) testTx {
	return testTx{base: true}
}

// testRx is the proxy-to-handle message type: a user payload alongside
// the three base variants.
type testRx struct {
	base    bool
	kind    BaseRxKind
	payload string
}

func (r testRx) AsBase() (BaseRx, bool) {
	if r.base {
		return BaseRx{Kind: r.kind}, true
	}
	return BaseRx{}, false
}

func (r testRx) FromBaseRx(b BaseRx) testRx {
	return testRx{base: true, kind: b.Kind}
}

// recordingProxy is a minimal UserProxy[testTx, testRx] that records
// its lifecycle calls and every user message it receives.
type recordingProxy struct {
	attached bool
	detached bool
	recvd    []testTx
}

func (p *recordingProxy) Attach(ctrl *loop.AttachControl, out *channel.Sender[testRx]) error {
	p.attached = true
	return nil
}

func (p *recordingProxy) Process(ctrl *loop.ProcessControl) error {
	return nil
}

func (p *recordingProxy) ProcessRecvChannel(msg testTx) error {
	p.recvd = append(p.recvd, msg)
	return nil
}

func (p *recordingProxy) Detach(ctrl *loop.DetachControl) error {
	p.detached = true
	return nil
}

func TestBaseRxRoundTrip(t *testing.T) {
	msg := fromBaseRx[testRx](BaseRx{Kind: Detached})
	base, ok := msg.AsBase()
	require.True(t, ok)
	assert.Equal(t, Detached, base.Kind)
}

func TestBaseTxRoundTrip(t *testing.T) {
	msg := fromBaseTx[testTx](BaseTx{})
	base, ok := msg.AsBase()
	require.True(t, ok)
	assert.Equal(t, BaseTx{}, base)
}

// TestWrapperLifecycle drives Create's proxy through a real loop.Loop
// (via manual RunOnce calls, not a background Driver goroutine, so the
// test stays deterministic) and checks that the handle first observes
// Attached, that the proxy receives the handle's user message, and
// that after Close the last message the handle observes is Closed.
func TestWrapperLifecycle(t *testing.T) {
	user := &recordingProxy{}
	p, handle, err := Create[testTx, testRx](user)
	require.NoError(t, err)

	cmdSend, cmdRecv, err := channel.New[loop.Command]()
	require.NoError(t, err)
	defer cmdSend.Close()

	l, err := loop.New(cmdRecv)
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()

	require.NoError(t, cmdSend.Send(loop.Command{Attach: p}))
	require.NoError(t, l.RunOnce(ctx, time.Second))
	assert.True(t, user.attached)

	var received []testRx
	collect := func(msg testRx) error {
		received = append(received, msg)
		return nil
	}

	require.NoError(t, handle.Process(0, collect))
	require.Len(t, received, 1)
	base, ok := received[0].AsBase()
	require.True(t, ok)
	assert.Equal(t, Attached, base.Kind)

	require.NoError(t, handle.Send(testTx{payload: "hi"}))
	require.NoError(t, l.RunOnce(ctx, time.Second))
	require.Len(t, user.recvd, 1)
	assert.Equal(t, "hi", user.recvd[0].payload)

	require.NoError(t, handle.Close())
	require.NoError(t, l.RunOnce(ctx, time.Second))
	assert.True(t, user.detached)

	received = nil
	err = handle.Process(time.Second, collect)
	assert.ErrorIs(t, err, errors.ErrClosed)
	require.True(t, len(received) >= 1)
	_, lastOK := received[len(received)-1].AsBase()
	require.True(t, lastOK)
	assert.Equal(t, Closed, received[len(received)-1].kind)
	assert.True(t, handle.IsClosed())

	err = handle.Process(0, collect)
	assert.ErrorIs(t, err, errors.ErrClosed)
}

// TestEarlyProxyDrop covers the early-proxy-drop scenario: a pair is
// created and the proxy side is discarded before it is ever attached to
// a Driver. The handle still observes a terminal Closed, and a further
// receive on the now-drained, now-disconnected channel reports
// Disconnected, never blocking forever waiting for a Driver that will
// never come.
func TestEarlyProxyDrop(t *testing.T) {
	user := &recordingProxy{}
	p, handle, err := Create[testTx, testRx](user)
	require.NoError(t, err)

	p.Discard()

	var received []testRx
	err = handle.Process(time.Second, func(msg testRx) error {
		received = append(received, msg)
		return nil
	})
	assert.Equal(t, errors.ErrClosed, err)
	require.Len(t, received, 1)
	base, ok := received[0].AsBase()
	require.True(t, ok)
	assert.Equal(t, Closed, base.Kind)
	assert.True(t, handle.IsClosed())

	_, rerr := handle.rx.TryRecv()
	assert.Equal(t, errors.ErrDisconnected, rerr)

	assert.False(t, user.attached)
	assert.False(t, user.detached)
}

// TestCloseThenAttach covers the close-before-attach scenario: a side
// goroutine calls handle.Close() immediately after the pair is created,
// before the proxy is ever attached to a Driver. The proxy still
// observes Attach, then the queued close request as a single command,
// and the handle ends with exactly [Attached, Detached, Closed].
func TestCloseThenAttach(t *testing.T) {
	user := &recordingProxy{}
	p, handle, err := Create[testTx, testRx](user)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = handle.Close()
	}()
	<-done

	driver, err := loop.NewDriver(50 * time.Millisecond)
	require.NoError(t, err)
	defer driver.Close()

	require.NoError(t, driver.Attach(p))

	var received []testRx
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !handle.IsClosed() {
		err := handle.Process(100*time.Millisecond, func(msg testRx) error {
			received = append(received, msg)
			return nil
		})
		if err != nil && err != errors.ErrClosed {
			require.NoError(t, err)
		}
	}

	require.True(t, handle.IsClosed())
	require.Len(t, received, 3)
	kinds := make([]BaseRxKind, len(received))
	for i, msg := range received {
		base, ok := msg.AsBase()
		require.True(t, ok)
		kinds[i] = base.Kind
	}
	assert.Equal(t, []BaseRxKind{Attached, Detached, Closed}, kinds)

	assert.True(t, user.attached)
	assert.True(t, user.detached)
	require.Len(t, user.recvd, 1)
	baseTx, ok := user.recvd[0].AsBase()
	require.True(t, ok)
	assert.Equal(t, BaseTx{}, baseTx)
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	user := &recordingProxy{}
	p, handle, err := Create[testTx, testRx](user)
	require.NoError(t, err)

	cmdSend, cmdRecv, err := channel.New[loop.Command]()
	require.NoError(t, err)
	defer cmdSend.Close()

	l, err := loop.New(cmdRecv)
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, cmdSend.Send(loop.Command{Attach: p}))
	require.NoError(t, l.RunOnce(ctx, time.Second))

	require.NoError(t, handle.Close())
	assert.Equal(t, errors.ErrClosed, handle.Close())
}
