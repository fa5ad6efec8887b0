package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type connHarness struct {
	loop    *testLoop
	sched   *fakeScheduler
	dialer  *fakeDialer
	handler *recordingHandler
	metrics *Metrics
	logs    *observer.ObservedLogs
	mgr     *ConnectionManager
}

func newConnHarness(t *testing.T) *connHarness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &connHarness{
		loop:    newTestLoop(),
		sched:   &fakeScheduler{},
		dialer:  &fakeDialer{},
		handler: &recordingHandler{},
		metrics: NewMetrics(prometheus.NewRegistry()),
		logs:    logs,
	}
	h.mgr = NewConnectionManager(ConnOptions{
		Endpoint:  "ws://arena.test/ws",
		Username:  "alice",
		Dialer:    h.dialer,
		Scheduler: h.sched,
		Post:      h.loop.post,
		Handler:   h.handler,
		Log:       zap.New(core).Sugar(),
		Metrics:   h.metrics,
	})
	t.Cleanup(func() {
		h.mgr.Close()
		h.loop.drain()
	})
	return h
}

func (h *connHarness) connect(t *testing.T) *fakeConn {
	t.Helper()
	if h.mgr.State() == StateDisconnected && h.dialer.dials() == 0 {
		h.mgr.Start(context.Background())
	}
	h.loop.pumpUntil(t, func() bool { return h.mgr.State() == StateConnected })
	return h.dialer.conn(h.dialer.dials() - 1)
}

func TestJoinSentOnConnect(t *testing.T) {
	h := newConnHarness(t)
	conn := h.connect(t)

	assert.Equal(t, 1, h.handler.connected)
	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"action":"join_game","username":"alice"}`, conn.written()[0])
	assert.NotEmpty(t, h.mgr.AttemptID())
	assert.Equal(t, float64(StateConnected), testutil.ToFloat64(h.metrics.ConnState))
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	h := newConnHarness(t)
	assert.False(t, h.mgr.Send(StopCommand{}))
	assert.Equal(t, 0, h.dialer.dials())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActionsDropped.WithLabelValues("not_connected")))
}

func TestSendWritesEncodedAction(t *testing.T) {
	h := newConnHarness(t)
	conn := h.connect(t)

	require.True(t, h.mgr.Send(MoveCommand{Direction: DirRight}))
	require.Eventually(t, func() bool { return len(conn.written()) == 2 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"action":"move","direction":"right"}`, conn.written()[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ActionsSent.WithLabelValues(ActionMove)))
}

func TestExactlyOneReconnectPerDrop(t *testing.T) {
	h := newConnHarness(t)
	h.connect(t)

	for drop := 1; drop <= 3; drop++ {
		conn := h.dialer.conn(h.dialer.dials() - 1)
		_ = conn.Close()
		h.loop.pumpUntil(t, func() bool { return h.mgr.State() == StateDisconnected })
		h.loop.drain()

		pending := h.sched.pending()
		require.Len(t, pending, 1, "drop %d", drop)
		assert.Equal(t, DefaultReconnectDelay, pending[0].d)
		assert.Len(t, h.handler.disconnected, drop)
		assert.True(t, h.mgr.ReconnectPending())

		// 重复的关闭通知不会再排一个定时器
		h.mgr.handleClosed(h.mgr.gen, errors.New("late close"))
		assert.Len(t, h.sched.pending(), 1)

		h.sched.fireAll()
		h.loop.pumpUntil(t, func() bool { return h.mgr.State() == StateConnected })
		assert.Equal(t, drop+1, h.dialer.dials())
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Reconnects))
	assert.Equal(t, 4, h.handler.connected)
}

func TestDialFailureRetriesAfterDelay(t *testing.T) {
	h := newConnHarness(t)
	h.dialer.setFail(errors.New("connection refused"))
	h.mgr.Start(context.Background())

	h.loop.pumpUntil(t, func() bool { return h.mgr.ReconnectPending() })
	assert.Equal(t, StateDisconnected, h.mgr.State())
	require.Len(t, h.sched.pending(), 1)
	assert.Len(t, h.handler.disconnected, 1)
	assert.Equal(t, 0, h.handler.connected)

	h.dialer.setFail(nil)
	h.sched.fireAll()
	h.loop.pumpUntil(t, func() bool { return h.mgr.State() == StateConnected })
	assert.False(t, h.mgr.ReconnectPending())
}

func TestMalformedPayloadDropped(t *testing.T) {
	h := newConnHarness(t)
	conn := h.connect(t)

	conn.push(`{"action":`)
	conn.push(`{"action":"player_left","playerId":"p2"}`)
	h.loop.pumpUntil(t, func() bool { return len(h.handler.messages) == 1 })

	assert.Equal(t, &PlayerLeft{PlayerID: "p2"}, h.handler.messages[0])
	assert.Equal(t, StateConnected, h.mgr.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DecodeErrors))
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("drop inbound payload").Len())
	assert.Equal(t, uint64(len(`{"action":`)+len(`{"action":"player_left","playerId":"p2"}`)), h.mgr.BytesReceived())
}

func TestPartialMovesDeliveredWithWarning(t *testing.T) {
	h := newConnHarness(t)
	conn := h.connect(t)

	conn.push(`{"action":"players_moved","players":{"p1":{"facing":"up"},"p2":{"x":5}}}`)
	h.loop.pumpUntil(t, func() bool { return len(h.handler.messages) == 1 })

	moved := h.handler.messages[0].(*PlayersMoved)
	assert.Len(t, moved.Players, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.DecodeErrors))
	assert.Equal(t, 1, h.logs.FilterMessageSnippet(`players_moved: skipped player "p1"`).Len())
}

func TestStaleTransportIgnored(t *testing.T) {
	h := newConnHarness(t)
	h.connect(t)
	oldGen := h.mgr.gen

	_ = h.dialer.conn(0).Close()
	h.loop.pumpUntil(t, func() bool { return h.mgr.State() == StateDisconnected })
	h.loop.drain()
	h.sched.fireAll()
	h.connect(t)

	h.mgr.handlePayload(oldGen, []byte(`{"action":"player_left","playerId":"p2"}`))
	assert.Empty(t, h.handler.messages)

	h.mgr.handleClosed(oldGen, errors.New("old transport"))
	assert.Equal(t, StateConnected, h.mgr.State())
	assert.Empty(t, h.sched.pending())
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	h := newConnHarness(t)
	h.connect(t)
	_ = h.dialer.conn(0).Close()
	h.loop.pumpUntil(t, func() bool { return h.mgr.ReconnectPending() })
	timer := h.sched.last()

	h.mgr.Close()
	assert.True(t, timer.stopped)
	assert.False(t, h.mgr.ReconnectPending())

	// 取消前已触发的回调晚到也不会重连
	timer.f()
	h.loop.drain()
	assert.Equal(t, 1, h.dialer.dials())
	assert.Equal(t, StateDisconnected, h.mgr.State())
}

func TestUnknownActionForwarded(t *testing.T) {
	h := newConnHarness(t)
	conn := h.connect(t)
	conn.push(`{"action":"chat","text":"hello"}`)
	conn.push(`{"action":"emote-42"}`)
	conn.push(`{"action":"player_left","playerId":"p9"}`)
	h.loop.pumpUntil(t, func() bool { return len(h.handler.messages) == 3 })
	assert.Equal(t, "chat", h.handler.messages[0].Action())

	// 服务端给出的未知名称不进入标签
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.MessagesReceived.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MessagesReceived.WithLabelValues(ActionPlayerLeft)))
	assert.Equal(t, 2, testutil.CollectAndCount(h.metrics.MessagesReceived))
}
