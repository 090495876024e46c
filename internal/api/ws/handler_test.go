package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/domain/watchdog"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/shared/clock"
	"github.com/GriffinCanCode/AgentOS/anrd/internal/transport"
)

type ack struct {
	eventID   watchdog.EventID
	sessionID watchdog.SessionID
}

type chanAcker chan ack

func (c chanAcker) MarkProcessed(eventID watchdog.EventID, sessionID watchdog.SessionID) {
	c <- ack{eventID, sessionID}
}

func newTestServer(t *testing.T) (*Hub, chanAcker, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil, monitoring.NewMetrics())
	acks := make(chanAcker, 16)
	router := gin.New()
	router.GET(transport.StreamPath, NewHandler(hub, acks).HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, acks, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID int32) *transport.WS {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.DialWS(ctx, srv.URL, sessionID, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitSubscribed(t *testing.T, hub *Hub, sessionID watchdog.SessionID) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribed(sessionID) }, 2*time.Second, 5*time.Millisecond)
}

func readWithin(t *testing.T, conn *transport.WS) transport.Message {
	t.Helper()
	type result struct {
		msg transport.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := conn.Read()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return transport.Message{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub, _, srv := newTestServer(t)
	assert.False(t, hub.Publish(1, 1, 0), "no subscriber yet")

	conn := dial(t, srv, 1)
	waitSubscribed(t, hub, 1)

	require.True(t, hub.Publish(1, 42, 1200))
	msg := readWithin(t, conn)
	assert.Equal(t, transport.EventMessage(1, 42, 1200), msg)
}

func TestAckFramesReachWatchdog(t *testing.T) {
	hub, acks, srv := newTestServer(t)
	conn := dial(t, srv, 3)
	waitSubscribed(t, hub, 3)

	conn.SendAck(3, 17)

	select {
	case got := <-acks:
		assert.Equal(t, ack{eventID: 17, sessionID: 3}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("ack not applied")
	}
}

func TestAckForOtherSessionRejected(t *testing.T) {
	hub, acks, srv := newTestServer(t)
	conn := dial(t, srv, 3)
	waitSubscribed(t, hub, 3)

	conn.SendAck(4, 17)
	msg := readWithin(t, conn)
	assert.Equal(t, transport.TypeError, msg.Type)
	assert.Empty(t, acks)
}

func TestPingPong(t *testing.T) {
	hub, _, srv := newTestServer(t)
	conn := dial(t, srv, 1)
	waitSubscribed(t, hub, 1)

	require.NoError(t, conn.Ping())
	assert.Equal(t, transport.TypePong, readWithin(t, conn).Type)
}

func TestInvalidFrameGetsError(t *testing.T) {
	hub, _, srv := newTestServer(t)

	u, err := transport.StreamURL(srv.URL, 1)
	require.NoError(t, err)
	raw, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer raw.Close()
	waitSubscribed(t, hub, 1)

	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	_ = raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := raw.ReadMessage()
	require.NoError(t, err)

	msg, err := transport.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, transport.TypeError, msg.Type)
	assert.Contains(t, msg.Error, "unknown type")
}

func TestNewestSubscriberWins(t *testing.T) {
	hub, _, srv := newTestServer(t)

	first := dial(t, srv, 5)
	waitSubscribed(t, hub, 5)
	second := dial(t, srv, 5)

	// the first connection is closed by the server
	errCh := make(chan error, 1)
	go func() {
		_, err := first.Read()
		errCh <- err
	}()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("replaced subscriber was not closed")
	}

	assert.Equal(t, 1, hub.Len())
	require.Eventually(t, func() bool { return hub.Publish(5, 1, 0) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, watchdog.EventID(1), watchdog.EventID(readWithin(t, second).EventID))
}

func TestDisconnectUnsubscribes(t *testing.T) {
	hub, _, srv := newTestServer(t)
	conn := dial(t, srv, 8)
	waitSubscribed(t, hub, 8)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !hub.Subscribed(8) }, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectReportsSessionLost(t *testing.T) {
	hub, _, srv := newTestServer(t)
	lost := make(chan watchdog.SessionID, 4)
	hub.SubscribeSessionLost(func(sessionID watchdog.SessionID) { lost <- sessionID })

	first := dial(t, srv, 11)
	waitSubscribed(t, hub, 11)
	second := dial(t, srv, 11)

	// the replaced connection does not count as a loss
	_, err := first.Read()
	require.Error(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, lost)
	assert.True(t, hub.Subscribed(11))

	require.NoError(t, second.Close())
	select {
	case sessionID := <-lost:
		assert.Equal(t, watchdog.SessionID(11), sessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("session loss not reported")
	}
}

func TestSessionLostClearsWatchdog(t *testing.T) {
	hub, _, srv := newTestServer(t)
	wd := watchdog.New(watchdog.DefaultConfig(), clock.NewManual(0), nil)
	wd.Init(hub)

	require.True(t, wd.AddTimer(1, 0, 12))
	conn := dial(t, srv, 12)
	waitSubscribed(t, hub, 12)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return wd.Stats().OutstandingTimers == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, wd.Session(12).PendingEvents)
}

func TestBadSessionParameter(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + transport.StreamPath + "?session=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
