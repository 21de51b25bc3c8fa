package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/alerts"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/store"
	wsHub "github.com/rich1707/Customer-Churn/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func newStore(batches ...*types.Batch) *store.Store {
	st := store.New(5 * time.Minute)
	for _, b := range batches {
		st.Put(b)
	}
	return st
}

func batch(id string, churnRate float64) *types.Batch {
	return &types.Batch{
		ID:         "batch-" + id,
		SourceID:   id,
		SourceType: "csv",
		DerivedAt:  time.Now(),
		Status:     types.StatusOK,
		Stats:      types.BatchStats{Rows: 10, Labelled: 10, ChurnRate: churnRate, UptimePct: 100},
	}
}

// sources extracts data.sources from a hub message.
func sources(t *testing.T, msg []byte) []interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	list, ok := data["sources"].([]interface{})
	if !ok {
		t.Fatal("sources: missing or wrong type")
	}
	return list
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cleanup function.
func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	return startHubEvery(t, st, nil, testInterval)
}

func startHubEvery(t *testing.T, st *store.Store, al *alerts.Engine, interval time.Duration) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, al, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	st := newStore(batch("telco", 20))
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["event"] != wsHub.EventSnapshot {
		t.Errorf("event: got %v, want snapshot", m["event"])
	}
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	if data["generated_at"] == nil || data["generated_at"] == "" {
		t.Error("generated_at: missing")
	}
}

func TestHub_MessageContainsSources(t *testing.T) {
	st := newStore(batch("telco", 20), batch("crm", 35))
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	if n := len(sources(t, readMessage(t, conn))); n != 2 {
		t.Errorf("sources: got %d, want 2", n)
	}
}

func TestHub_EmptyStore_EmptySources(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore())
	conn := dial(t, wsURL)
	if n := len(sources(t, readMessage(t, conn))); n != 0 {
		t.Errorf("sources: got %d, want 0", n)
	}
}

func TestHub_CountClients_SingleClient(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume initial message

	// Give the hub a moment to register the client.
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestHub_CountClients_MultipleClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())

	for i := 0; i < 3; i++ {
		conn := dial(t, wsURL)
		readMessage(t, conn) // consume initial message
	}

	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	if n := hub.Count(); n != 1 {
		t.Errorf("Count before disconnect: got %d, want 1", n)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond) // let readPump detect the close

	if n := hub.Count(); n != 0 {
		t.Errorf("Count after disconnect: got %d, want 0", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	st := newStore()
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate snapshot (empty store)

	st.Put(batch("new-source", 10))

	list := sources(t, readMessage(t, conn))
	if len(list) != 1 {
		t.Fatalf("tick broadcast: got %d sources, want 1", len(list))
	}
	p := list[0].(map[string]interface{})
	if p["source_id"] != "new-source" {
		t.Errorf("source_id: got %v, want new-source", p["source_id"])
	}
}

func TestHub_NotifyBroadcastsImmediately(t *testing.T) {
	st := newStore()
	al := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "high-churn", Condition: "churn_rate > 30"},
	}})
	// An interval long enough that only Notify can trigger the second message.
	wsURL, hub, _ := startHubEvery(t, st, al, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	b := batch("telco", 45)
	st.Put(b)
	al.Evaluate(b)
	hub.Notify()
	hub.Notify() // coalesced

	msg := readMessage(t, conn)
	if n := len(sources(t, msg)); n != 1 {
		t.Errorf("sources: got %d, want 1", n)
	}
	var m struct {
		Data struct {
			Alerts []alerts.Alert `json:"alerts"`
		} `json:"data"`
	}
	json.Unmarshal(msg, &m) //nolint:errcheck
	if len(m.Data.Alerts) != 1 || m.Data.Alerts[0].RuleName != "high-churn" {
		t.Errorf("alerts: got %+v", m.Data.Alerts)
	}
}

func TestHub_AllClientsReceiveBroadcast(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(batch("src", 10)))

	conns := make([]*websocket.Conn, 3)
	for i := 0; i < 3; i++ {
		conns[i] = dial(t, wsURL)
	}

	// All three should receive the initial snapshot.
	for i, conn := range conns {
		msg := readMessage(t, conn)
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Errorf("client %d: unmarshal: %v", i, err)
			continue
		}
		if m["event"] != wsHub.EventSnapshot {
			t.Errorf("client %d: event: got %v, want snapshot", i, m["event"])
		}
	}
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel() // signal shutdown

	// After cancel, hub should close all clients.
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newStore(), nil, testInterval)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without upgrade headers gets 400.
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHub_SourceFilter(t *testing.T) {
	st := newStore(batch("telco", 20), batch("crm", 35))
	al := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "high-churn", Condition: "churn_rate > 30"},
	}})
	al.Evaluate(batch("crm", 35))
	wsURL, _, _ := startHubEvery(t, st, al, testInterval)

	conn := dial(t, wsURL+"?source=telco")
	msg := readMessage(t, conn)

	list := sources(t, msg)
	if len(list) != 1 || list[0].(map[string]interface{})["source_id"] != "telco" {
		t.Fatalf("sources: got %v, want only telco", list)
	}
	var m struct {
		Data struct {
			Alerts []alerts.Alert `json:"alerts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Data.Alerts) != 0 {
		t.Errorf("alerts: got %d, want 0 (the crm alert is filtered out)", len(m.Data.Alerts))
	}
}

func TestHub_SeqIncreases(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore(batch("telco", 10)))
	conn := dial(t, wsURL)

	seqOf := func(msg []byte) uint64 {
		var m wsHub.Message
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return m.Seq
	}
	first := seqOf(readMessage(t, conn))
	second := seqOf(readMessage(t, conn))
	third := seqOf(readMessage(t, conn))
	if second <= first {
		t.Errorf("seq: %d then %d, want increase", first, second)
	}
	if third != second+1 {
		t.Errorf("seq: %d then %d, want consecutive broadcasts", second, third)
	}
}
