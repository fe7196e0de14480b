package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/stockbook/stockbook/internal/schema"
	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/store"
	stocksync "github.com/stockbook/stockbook/internal/sync"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// startTestServer runs a feed on a random port until the test ends and
// returns its address.
func startTestServer(t *testing.T, server *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, ctx context.Context, addr string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("Failed to unmarshal %T: %v", v, err)
	}
	return v
}

// waitForClients polls until the server reports n subscribers.
func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func fixedStats(items, outOfStock int) StatsSource {
	return func(context.Context) (*StatsData, error) {
		return &StatsData{Pending: map[string]int{"items": 0}, Items: items, OutOfStock: outOfStock}, nil
	}
}

// TestRun_Summary tests the JSON summary served at the root path.
func TestRun_Summary(t *testing.T) {
	server := New(fixedStats(3, 1), quietLogger())
	addr := startTestServer(t, server)

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("summary request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /, got %d", resp.StatusCode)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.Stats == nil || summary.Stats.Items != 3 || summary.Stats.OutOfStock != 1 {
		t.Errorf("unexpected summary stats: %+v", summary.Stats)
	}
	if summary.Clients != 0 {
		t.Errorf("expected 0 clients, got %d", summary.Clients)
	}

	resp, err = http.Get("http://" + addr + "/elsewhere")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

// TestFeed_WelcomeIsLatestStats tests that each subscriber starts with the
// current statistics.
func TestFeed_WelcomeIsLatestStats(t *testing.T) {
	server := New(fixedStats(5, 0), quietLogger())
	addr := startTestServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		msg := read(t, ctx, dial(t, ctx, addr))
		if msg.Type != MessageTypeStats {
			t.Fatalf("Expected welcome type %s, got %s", MessageTypeStats, msg.Type)
		}
		if got := decode[StatsData](t, msg.Data); got.Items != 5 {
			t.Errorf("expected 5 items in welcome, got %+v", got)
		}
	}
	waitForClients(t, server, numClients)
}

// TestFeed_SyncCompleted tests that a cycle is followed by refreshed stats
// that carry the cycle's online state.
func TestFeed_SyncCompleted(t *testing.T) {
	server := New(fixedStats(3, 1), quietLogger())
	addr := startTestServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, addr)
	if welcome := decode[StatsData](t, read(t, ctx, conn).Data); welcome.Online {
		t.Error("expected offline before any cycle")
	}

	now := time.Now()
	server.SyncCompleted(&stocksync.Report{
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Online:     true,
		Entities: []stocksync.EntityReport{
			{Entity: schema.EntityItem, Pending: 2, Pushed: 2, Marked: 2},
			{Entity: schema.EntitySale, Pending: 1, Err: errors.New("rejected")},
		},
	})

	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	if !msg.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, msg.Timestamp)
	}
	data := decode[SyncCompleteData](t, msg.Data)
	if data.Pushed != 2 || len(data.Entities) != 2 || data.Entities[1].Error != "rejected" {
		t.Errorf("unexpected sync data: %+v", data)
	}
	if data.Duration != time.Second {
		t.Errorf("expected 1s duration, got %v", data.Duration)
	}

	msg = read(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected %s, got %s", MessageTypeStats, msg.Type)
	}
	if got := decode[StatsData](t, msg.Data); !got.Online || got.Items != 3 {
		t.Errorf("unexpected stats: %+v", got)
	}

	// A late subscriber sees the refreshed stats.
	welcome := decode[StatsData](t, read(t, ctx, dial(t, ctx, addr)).Data)
	if !welcome.Online {
		t.Errorf("expected online stats in welcome, got %+v", welcome)
	}
}

// TestFeed_NoStats tests a feed without a stats source: no welcome frame,
// sync frames only.
func TestFeed_NoStats(t *testing.T) {
	server := New(nil, quietLogger())
	addr := startTestServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, addr)
	waitForClients(t, server, 1)

	server.SyncCompleted(&stocksync.Report{FinishedAt: time.Now()})
	if msg := read(t, ctx, conn); msg.Type != MessageTypeSyncComplete {
		t.Errorf("expected first frame %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
}

// TestFeed_Disconnect tests that closed clients are forgotten.
func TestFeed_Disconnect(t *testing.T) {
	server := New(fixedStats(1, 0), quietLogger())
	addr := startTestServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, addr)
	read(t, ctx, conn)
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

// TestFeed_SlowSubscriberDropped tests that a subscriber whose queue is
// full is removed rather than blocking the feed.
func TestFeed_SlowSubscriberDropped(t *testing.T) {
	server := New(nil, quietLogger())
	sub := server.subscribe()

	msg, err := newMessage(MessageTypeStats, time.Time{}, StatsData{})
	if err != nil {
		t.Fatalf("newMessage failed: %v", err)
	}
	for i := 0; i <= subscriberBuffer; i++ {
		server.publish(msg)
	}

	if n := server.ClientCount(); n != 0 {
		t.Errorf("expected slow subscriber to be dropped, got %d clients", n)
	}
	for range sub.send {
	}
	server.unsubscribe(sub)
}

// TestStoreStats tests statistics computed from a real store.
func TestStoreStats(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "dash.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	if err := st.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	sh := shop.New(st, nil, quietLogger())
	if _, _, err := sh.AddStock(ctx, shop.StockInput{Name: "sugar", MP: 1, SP: 2, Quantity: 0}); err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if _, _, err := sh.AddStock(ctx, shop.StockInput{Name: "rice", MP: 1, SP: 2, Quantity: 1, Target: schema.Float(10)}); err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}

	stats, err := StoreStats(st, sh)(ctx)
	if err != nil {
		t.Fatalf("StoreStats failed: %v", err)
	}
	if stats.Items != 2 || stats.OutOfStock != 1 || stats.RunningLow != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Pending["items"] != 2 {
		t.Errorf("expected 2 pending items, got %d", stats.Pending["items"])
	}
	if stats.LastSync != nil {
		t.Error("expected no last sync")
	}
}
