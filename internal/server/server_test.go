package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/alert"
	"stockpilot/internal/models"
	"stockpilot/internal/store"
	"stockpilot/internal/stream"
)

type testEnv struct {
	srv   *httptest.Server
	hub   *stream.Hub
	store store.DataStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dataStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dataStore.Close() })

	hub := stream.NewHub(zerolog.Nop())
	t.Cleanup(hub.Close)

	emitter := alert.NewEmitter(hub, alert.DefaultThresholds(), zerolog.Nop())
	s := New(Config{PingInterval: time.Second, WriteTimeout: time.Second}, hub, emitter, dataStore, zerolog.Nop())

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, hub: hub, store: dataStore}
}

func (e *testEnv) dialFeed(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/alerts"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *testEnv) createProduct(t *testing.T, p models.Product) models.Product {
	t.Helper()
	body, _ := json.Marshal(p)
	resp, err := http.Post(e.srv.URL+"/api/products", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func (e *testEnv) adjust(t *testing.T, id int64, delta int) models.Product {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"delta": delta, "reason": "test"})
	resp, err := http.Post(fmt.Sprintf("%s/api/products/%d/adjust", e.srv.URL, id),
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	return updated
}

func readAlert(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}

func waitSubscribers(t *testing.T, hub *stream.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("never reached %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdjustBelowReorderLevelBroadcastsAlert(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{SKU: "WID-1", Name: "Widget", Quantity: 50, ReorderLevel: 10})

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.adjust(t, created.ID, -42) // 50 -> 8, below reorder level 10

	raw := readAlert(t, ws)
	assert.Equal(t, models.MessageLowStock, raw["type"])
	assert.Equal(t, float64(created.ID), raw["productId"])
	assert.Equal(t, "Widget", raw["productName"])
	assert.Equal(t, float64(8), raw["quantity"])
	assert.Equal(t, float64(10), raw["reorderLevel"])
}

func TestAdjustToZeroBroadcastsOutOfStockWithoutDaysLeft(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{SKU: "GAD-1", Name: "Gadget", Quantity: 20, ReorderLevel: 5})

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.adjust(t, created.ID, -20)

	raw := readAlert(t, ws)
	assert.Equal(t, models.MessageOutOfStock, raw["type"])
	_, hasDaysLeft := raw["daysLeft"]
	assert.False(t, hasDaysLeft, "out_of_stock must omit daysLeft")
}

func TestCriticalAlertCarriesDaysLeft(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{
		SKU: "GIZ-1", Name: "Gizmo", Quantity: 20, ReorderLevel: 10, AvgDailyConsumption: 1,
	})

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.adjust(t, created.ID, -17) // 3 left at 1/day -> critical

	raw := readAlert(t, ws)
	assert.Equal(t, models.MessageCriticalStock, raw["type"])
	assert.Equal(t, float64(3), raw["daysLeft"])
}

func TestAdjustDerivesConsumptionRateFromMovements(t *testing.T) {
	env := newTestEnv(t)
	// No explicit consumption rate: the trailing movement history supplies it.
	created := env.createProduct(t, models.Product{SKU: "DRV-1", Name: "Derived", Quantity: 100, ReorderLevel: 15})

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.adjust(t, created.ID, -90) // 90 consumed over the window -> 3/day, 10 left -> 3 days

	raw := readAlert(t, ws)
	assert.Equal(t, models.MessageCriticalStock, raw["type"])
	assert.Equal(t, float64(3), raw["daysLeft"])
}

func TestHealthyAdjustmentBroadcastsNothing(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{SKU: "BOL-1", Name: "Bolt", Quantity: 100, ReorderLevel: 10})

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.adjust(t, created.ID, -5) // 95 left, healthy

	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "no alert expected for a healthy adjustment")
}

func TestAllSubscribersReceiveTheAlert(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{SKU: "SPR-1", Name: "Sprocket", Quantity: 30, ReorderLevel: 10})

	conns := []*websocket.Conn{env.dialFeed(t), env.dialFeed(t), env.dialFeed(t)}
	waitSubscribers(t, env.hub, 3)

	env.adjust(t, created.ID, -25)

	for i, ws := range conns {
		raw := readAlert(t, ws)
		assert.Equal(t, models.MessageLowStock, raw["type"], "subscriber %d", i)
		assert.Equal(t, float64(5), raw["quantity"], "subscriber %d", i)
	}
}

func TestCreateWithLowInitialStockBroadcasts(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.createProduct(t, models.Product{SKU: "NUT-1", Name: "Nut", Quantity: 2, ReorderLevel: 10, AvgDailyConsumption: 1})

	raw := readAlert(t, ws)
	assert.Equal(t, models.MessageCriticalStock, raw["type"])
}

func TestCreateWithZeroStockBroadcastsNothing(t *testing.T) {
	env := newTestEnv(t)

	ws := env.dialFeed(t)
	waitSubscribers(t, env.hub, 1)

	env.createProduct(t, models.Product{SKU: "EMP-1", Name: "Empty", Quantity: 0, ReorderLevel: 10})

	ws.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "no alert expected for an item that was never stocked")
}

func TestMutationSucceedsWithZeroSubscribers(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProduct(t, models.Product{SKU: "CAM-1", Name: "Cam", Quantity: 20, ReorderLevel: 10})

	// No websocket clients at all: the publish is a silent no-op.
	updated := env.adjust(t, created.ID, -15)
	assert.Equal(t, 5, updated.Quantity)
}

func TestAdjustUnknownProductReturns404(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{"delta": -1})
	resp, err := http.Post(env.srv.URL+"/api/products/9999/adjust", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateDuplicateSKUReturns409(t *testing.T) {
	env := newTestEnv(t)
	env.createProduct(t, models.Product{SKU: "DUP-1", Name: "First", Quantity: 5})

	body, _ := json.Marshal(models.Product{SKU: "DUP-1", Name: "Second", Quantity: 5})
	resp, err := http.Post(env.srv.URL+"/api/products", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
