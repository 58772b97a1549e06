package socket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/pathsock/pkg/core"
)

func TestSendDefaultProfileFirstViable(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, false)
	eng.SetViable(testAddrB, true)

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA, testAddrB}, 5000, 6000)
	require.NoError(t, err)

	n, err := tbl.Send(h, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	tx := eng.Transmitted()
	require.Len(t, tx, 1)
	assert.Equal(t, testAddrB, tx[0].Addr)
	assert.Equal(t, []byte("hello"), tx[0].Data)
}

func TestSendEmptyPayload(t *testing.T) {
	tbl, _ := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	_, err = tbl.Send(h, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendTimeoutWhenNothingViable(t *testing.T) {
	tbl, _ := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA, testAddrB}, 1, 2)
	require.NoError(t, err)

	start := time.Now()
	_, err = tbl.Send(h, []byte("x"))
	assert.ErrorIs(t, err, ErrTimeout)
	// Bounded by the configured timeout, not hanging.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendPicksUpLateViability(t *testing.T) {
	tbl, eng := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		eng.SetViable(testAddrA, true)
	}()

	n, err := tbl.Send(h, []byte("late"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTrySendWouldBlock(t *testing.T) {
	tbl, eng := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	// Nothing viable: no waiting, immediate WouldBlock.
	start := time.Now()
	_, err = tbl.TrySend(h, []byte("x"))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	eng.SetViable(testAddrA, true)
	n, err := tbl.TrySend(h, []byte("now"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSendWithProfileUnsupported(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, true)
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	_, err = tbl.SendWithProfile(h, []byte("x"), core.Profile(77))
	assert.ErrorIs(t, err, ErrUnsupportedProfile)
}

func TestSendWithProfileLowestLatency(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetMetadata(testAddrA, core.PathMetadata{Viable: true, Latency: 10 * time.Millisecond})
	eng.SetMetadata(testAddrB, core.PathMetadata{Viable: true, Latency: 50 * time.Millisecond})

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrB, testAddrA}, 5000, 6000)
	require.NoError(t, err)

	n, err := tbl.SendWithProfile(h, []byte("ping"), core.ProfileLowestLatency)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	tx := eng.Transmitted()
	require.Len(t, tx, 1)
	assert.Equal(t, testAddrA, tx[0].Addr)
}

func TestReceiveAttributesArrivalPath(t *testing.T) {
	tbl, eng := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA, testAddrB}, 5000, 6000)
	require.NoError(t, err)

	eng.InjectArrival(testAddrB, []byte("pong"))

	data, from, err := tbl.Receive(h, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), data)
	assert.Equal(t, testAddrB, from)
}

func TestReceiveBufferTooSmall(t *testing.T) {
	tbl, eng := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	eng.InjectArrival(testAddrA, []byte("too large for four"))
	_, _, err = tbl.Receive(h, 4)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	// The oversized datagram was not half-delivered into the counters.
	snap, err := tbl.Stats(h)
	require.NoError(t, err)
	defer snap.Release()
	got, err := snap.BytesReceived()
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestReceiveInvalidCapacity(t *testing.T) {
	tbl, _ := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	_, _, err = tbl.Receive(h, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReceiveUnblocksOnClose(t *testing.T) {
	tbl, _ := newTestTable()
	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := tbl.Receive(h, 1024)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tbl.Close(h))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock on close")
	}
}

func TestSendOnClosedHandleLeavesStatsAlone(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, true)

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	// Snapshot taken before close stays valid and untouched afterwards.
	snap, err := tbl.Stats(h)
	require.NoError(t, err)
	defer snap.Release()

	require.NoError(t, tbl.Close(h))

	_, err = tbl.Send(h, []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	c, err := snap.Counters()
	require.NoError(t, err)
	assert.Zero(t, c.BytesSent)
	assert.Zero(t, c.Failures)
}

func TestFatalEngineErrorFailsSocket(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, true)
	eng.TransmitErr = core.FatalError(errors.New("underlay gone"))

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	_, err = tbl.Send(h, []byte("x"))
	assert.ErrorIs(t, err, ErrSocketFailed)

	state, err := tbl.State(h)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, state)

	// Everything after the fault fails terminally until close.
	_, err = tbl.Send(h, []byte("y"))
	assert.ErrorIs(t, err, ErrSocketFailed)
	_, _, err = tbl.Receive(h, 16)
	assert.ErrorIs(t, err, ErrSocketFailed)

	assert.NoError(t, tbl.Close(h))
}

func TestTransientTransmitErrorRetriesUntilTimeout(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, true)
	eng.TransmitErr = errors.New("temporary congestion")

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA}, 1, 2)
	require.NoError(t, err)

	_, err = tbl.Send(h, []byte("x"))
	assert.ErrorIs(t, err, ErrTimeout)

	// Still usable: the fault was transient, not terminal.
	state, err := tbl.State(h)
	require.NoError(t, err)
	assert.Equal(t, core.StateEstablished, state)
}

func TestStreamConnectingPromotesOnFirstSend(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetViable(testAddrA, true)

	h, err := tbl.Create(core.Stream, []core.Address{testAddrA}, 5000, 6000)
	require.NoError(t, err)

	state, err := tbl.State(h)
	require.NoError(t, err)
	assert.Equal(t, core.StateConnecting, state)

	_, err = tbl.Send(h, []byte("syn+data"))
	require.NoError(t, err)

	state, err = tbl.State(h)
	require.NoError(t, err)
	assert.Equal(t, core.StateEstablished, state)
}

func TestReceiveOnListeningSocket(t *testing.T) {
	tbl, _ := newTestTable()
	h, err := tbl.Create(core.Stream, []core.Address{testAddrA}, 5000, 0)
	require.NoError(t, err)

	_, _, err = tbl.Receive(h, 16)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// TestDatagramScenario walks the end-to-end example: create, profile send,
// receive with path attribution, stats snapshot, release.
func TestDatagramScenario(t *testing.T) {
	tbl, eng := newTestTable()
	eng.SetMetadata(testAddrA, core.PathMetadata{Viable: true, Latency: 5 * time.Millisecond})
	eng.SetMetadata(testAddrB, core.PathMetadata{Viable: true, Latency: 20 * time.Millisecond})

	h, err := tbl.Create(core.Datagram, []core.Address{testAddrA, testAddrB}, 5000, 6000)
	require.NoError(t, err)

	// Lowest latency picks A.
	n, err := tbl.SendWithProfile(h, []byte("ping"), core.ProfileLowestLatency)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	tx := eng.Transmitted()
	require.Len(t, tx, 1)
	assert.Equal(t, testAddrA, tx[0].Addr)

	// Reply arrives over B and is attributed to B.
	eng.InjectArrival(testAddrB, []byte("pong"))
	data, from, err := tbl.Receive(h, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), data)
	assert.Equal(t, testAddrB, from)

	// Snapshot reflects both directions and the per-path counts.
	snap, err := tbl.Stats(h)
	require.NoError(t, err)
	c, err := snap.Counters()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), c.BytesSent)
	assert.Equal(t, uint64(4), c.BytesReceived)
	assert.Equal(t, uint64(1), c.SendsPerPath[testAddrA.Key()])
	assert.Equal(t, uint64(1), c.ReceivesPerPath[testAddrB.Key()])

	// After release the snapshot is dead.
	require.NoError(t, snap.Release())
	_, err = snap.Counters()
	assert.ErrorIs(t, err, ErrSnapshotReleased)
}
