package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/models"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// feedServer upgrades each connection and passes it to handle.
func feedServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(ws)
	}))
}

func testConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:              url,
		MaxRetries:       3,
		BaseDelay:        20 * time.Millisecond,
		MaxDelay:         100 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnReceivesEvents(t *testing.T) {
	srv := feedServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		ws.WriteJSON(models.AlertMessage{Type: models.MessageLowStock, ProductID: 1, ProductName: "Widget", Quantity: 5, ReorderLevel: 10})
		ws.WriteJSON(models.AlertMessage{Type: models.MessageOutOfStock, ProductID: 2, ProductName: "Gadget"})
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	events := make(chan models.AlertEvent, 8)
	conn := NewConn(testConnConfig(wsURL(srv)), zerolog.Nop())
	conn.OnEvent(func(ev models.AlertEvent) { events <- ev })

	conn.Start(context.Background())
	defer conn.Close()

	first := <-events
	assert.Equal(t, models.SeverityLow, first.Kind)
	assert.Equal(t, int64(1), first.ProductID)
	assert.Equal(t, "Widget", first.ProductName)

	second := <-events
	assert.Equal(t, models.SeverityOutOfStock, second.Kind)
	assert.Equal(t, int64(2), second.ProductID)

	assert.True(t, conn.Connected())
}

func TestConnDropsMalformedFrames(t *testing.T) {
	srv := feedServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte("not json"))
		ws.WriteJSON(models.AlertMessage{Type: "mystery", ProductID: 3})
		ws.WriteJSON(models.AlertMessage{Type: models.MessageLowStock, ProductName: "no id"})
		days := 2
		ws.WriteJSON(models.AlertMessage{Type: models.MessageCriticalStock, ProductID: 4, ProductName: "Gizmo", Quantity: 2, ReorderLevel: 10, DaysLeft: &days})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	events := make(chan models.AlertEvent, 8)
	conn := NewConn(testConnConfig(wsURL(srv)), zerolog.Nop())
	conn.OnEvent(func(ev models.AlertEvent) { events <- ev })

	conn.Start(context.Background())
	defer conn.Close()

	// Only the well-formed critical event survives.
	ev := <-events
	require.Equal(t, models.SeverityCritical, ev.Kind)
	require.Equal(t, int64(4), ev.ProductID)
	require.Equal(t, 2, ev.DaysRemaining)

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnReconnectsAfterDrop(t *testing.T) {
	var connects int64
	srv := feedServer(t, func(ws *websocket.Conn) {
		n := atomic.AddInt64(&connects, 1)
		if n == 1 {
			// Drop the first connection immediately.
			ws.Close()
			return
		}
		defer ws.Close()
		ws.WriteJSON(models.AlertMessage{Type: models.MessageLowStock, ProductID: 10, ProductName: "Widget", Quantity: 1, ReorderLevel: 10})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	events := make(chan models.AlertEvent, 8)
	var states []State
	stateCh := make(chan State, 32)

	conn := NewConn(testConnConfig(wsURL(srv)), zerolog.Nop())
	conn.OnEvent(func(ev models.AlertEvent) { events <- ev })
	conn.OnStateChange(func(s State) { stateCh <- s })

	conn.Start(context.Background())
	defer conn.Close()

	// The event only arrives on the second connection.
	select {
	case ev := <-events:
		assert.Equal(t, int64(10), ev.ProductID)
	case <-time.After(5 * time.Second):
		t.Fatal("no event after reconnect")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt64(&connects), int64(2))

	// The observed transitions include a disconnect followed by a reconnect.
	waitFor(t, time.Second, func() bool { return len(stateCh) >= 4 }, "missing state transitions")
	for len(stateCh) > 0 {
		states = append(states, <-stateCh)
	}
	assert.Contains(t, states, StateDisconnected)
	assert.Equal(t, StateConnected, states[len(states)-1])
}

func TestConnDroppedSessionsBackOffAndSpendRetryBudget(t *testing.T) {
	// The server accepts every handshake and immediately closes the session.
	var connects int64
	srv := feedServer(t, func(ws *websocket.Conn) {
		atomic.AddInt64(&connects, 1)
		ws.Close()
	})
	defer srv.Close()

	conn := NewConn(ConnConfig{
		URL:              wsURL(srv),
		MaxRetries:       3,
		BaseDelay:        40 * time.Millisecond,
		MaxDelay:         200 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}, zerolog.Nop())

	start := time.Now()
	conn.Start(context.Background())
	defer conn.Close()

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt64(&connects) == 3 }, "never spent the retry budget")

	// Two backoff waits (40ms, 80ms) separate the three dials; anything much
	// faster means the loop re-dialed a dropped session without delay.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond,
		"3 dials in %v: no inter-attempt delay after dropped sessions", elapsed)

	// The budget is spent: no further dials, persistent disconnected.
	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 3, atomic.LoadInt64(&connects))
	assert.Equal(t, StateDisconnected, conn.State())
	assert.False(t, conn.Connected())
}

func TestConnGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close() // nothing is listening anymore

	conn := NewConn(ConnConfig{
		URL:              url,
		MaxRetries:       2,
		BaseDelay:        10 * time.Millisecond,
		MaxDelay:         20 * time.Millisecond,
		HandshakeTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())

	conn.Start(context.Background())

	waitFor(t, 3*time.Second, func() bool { return conn.State() == StateDisconnected }, "never settled disconnected")
	assert.False(t, conn.Connected())

	// Close after the loop has already given up is safe.
	conn.Close()
}

func TestConnCloseCancelsReconnectLoop(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	conn := NewConn(ConnConfig{
		URL:              url,
		MaxRetries:       100,
		BaseDelay:        50 * time.Millisecond,
		MaxDelay:         time.Second,
		HandshakeTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())

	conn.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		conn.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the reconnect loop")
	}
	assert.False(t, conn.Connected())
}
