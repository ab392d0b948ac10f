package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/choreweek/internal/database"
	"github.com/dukerupert/choreweek/internal/docstore"
	"github.com/dukerupert/choreweek/internal/logging"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, household string) *Client {
	return &Client{
		hub:       hub,
		conn:      nil,
		household: household,
		send:      make(chan []byte, sendBufferSize),
	}
}

func snapshot(path string, version int64) docstore.Snapshot {
	return docstore.Snapshot{Path: path, Exists: true, Version: version, Data: docstore.Document{"n": float64(version)}}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "a")
	c2 := mockClient(hub, "b")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishRoutesByHousehold(t *testing.T) {
	hub := NewHub(slog.Default())

	a := mockClient(hub, "a")
	b := mockClient(hub, "b")
	hub.Register(a)
	hub.Register(b)
	defer hub.Unregister(a)
	defer hub.Unregister(b)

	hub.Publish(snapshot("households/a/weeks/2025-W34", 7))

	got := receive(t, a)
	if got.Kind != KindWeek || got.Household != "a" || got.Version != 7 || got.Data["n"] != float64(7) {
		t.Errorf("message = %+v", got)
	}
	select {
	case <-b.send:
		t.Error("household b should not receive household a's snapshot")
	default:
	}
}

func TestPublishFiltersByFollowedWeek(t *testing.T) {
	hub := NewHub(logging.Discard())

	all := mockClient(hub, "a")
	w34 := mockClient(hub, "a")
	w34.week = "2025-W34"
	hub.Register(all)
	hub.Register(w34)
	defer hub.Unregister(all)
	defer hub.Unregister(w34)

	hub.Publish(snapshot("households/a/weeks/2025-W35", 1))
	if got := receive(t, all); got.Week != "2025-W35" {
		t.Errorf("week = %q", got.Week)
	}
	select {
	case <-w34.send:
		t.Error("client following 2025-W34 received 2025-W35")
	default:
	}

	hub.Publish(snapshot("households/a", 2))
	receive(t, all)
	if got := receive(t, w34); got.Kind != KindHousehold {
		t.Errorf("household message = %+v", got)
	}
}

func TestFollowCommand(t *testing.T) {
	hub := NewHub(logging.Discard())
	c := mockClient(hub, "a")
	var followed []string
	c.onFollow = func(_ context.Context, week string) { followed = append(followed, week) }

	ctx := context.Background()
	c.handle(ctx, []byte(`{"type":"follow","week":"2025-W35"}`))
	if c.Week() != "2025-W35" {
		t.Errorf("week = %q", c.Week())
	}
	c.handle(ctx, []byte(`{"type":"follow","week":"2025-W99"}`))
	c.handle(ctx, []byte(`{"type":"shout"}`))
	c.handle(ctx, []byte(`not json`))
	if c.Week() != "2025-W35" {
		t.Errorf("week = %q after ignored commands", c.Week())
	}
	c.handle(ctx, []byte(`{"type":"follow","week":""}`))
	if c.Week() != "" {
		t.Errorf("week = %q, want all weeks", c.Week())
	}
	if len(followed) != 1 || followed[0] != "2025-W35" {
		t.Errorf("followed = %v", followed)
	}
}

func TestNewMessageKinds(t *testing.T) {
	tests := []struct {
		path string
		kind string
		ok   bool
	}{
		{"households/a", KindHousehold, true},
		{"households/a/weeks/2025-W34", KindWeek, true},
		{"households/a/weeks/2025-W34/proofs/kitchen-0", KindProof, true},
		{"households/a/reminders/2025-08-18-morning", KindReminder, true},
		{"households/a/other/x", "", false},
		{"settings/x", "", false},
		{"households", "", false},
	}
	for _, tt := range tests {
		msg, ok := NewMessage(snapshot(tt.path, 1))
		if ok != tt.ok || msg.Kind != tt.kind {
			t.Errorf("NewMessage(%q) = %q, %v; want %q, %v", tt.path, msg.Kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestProofMessageOmitsImage(t *testing.T) {
	snap := docstore.Snapshot{
		Path:   "households/a/weeks/2025-W34/proofs/kitchen-0",
		Exists: true,
		Data:   docstore.Document{"b64": "aGVsbG8=", "uploadedBy": "A"},
	}
	msg, _ := NewMessage(snap)
	if _, ok := msg.Data["b64"]; ok {
		t.Error("proof message must not carry image bytes")
	}
	if msg.Data["uploadedBy"] != "A" {
		t.Errorf("data = %v", msg.Data)
	}
	if _, ok := snap.Data["b64"]; !ok {
		t.Error("snapshot data must not be modified")
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "a")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(snapshot("households/a", int64(i)))
	}

	// This should drop the message, not panic or block
	hub.Publish(snapshot("households/a", 999))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "a")
			hub.Register(c)
			hub.Publish(snapshot("households/a", 1))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()
	docs := docstore.NewSQLite(db)
	hub := NewHub(logging.Discard())
	docs.Observe(hub.Publish)

	ctx := context.Background()
	docs.Set(ctx, "households/demo", docstore.Document{"chores": []string{"Kitchen"}})

	server := httptest.NewServer(HandleWebSocket(hub, docs))
	defer server.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?household=demo"
	conn, _, err := ws.Dial(dialCtx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() Message {
		_, data, err := conn.Read(dialCtx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	first := read()
	if first.Kind != KindHousehold || !first.Exists {
		t.Fatalf("initial message = %+v", first)
	}

	docs.Merge(ctx, "households/demo/weeks/2025-W34", docstore.Document{"chores": map[string]any{}})
	docs.Merge(ctx, "households/other/weeks/2025-W34", docstore.Document{"chores": map[string]any{}})

	next := read()
	if next.Kind != KindWeek || next.Household != "demo" || next.Version <= first.Version {
		t.Errorf("change message = %+v", next)
	}

	if err := conn.Write(dialCtx, ws.MessageText, []byte(`{"type":"follow","week":"2025-W35"}`)); err != nil {
		t.Fatalf("write follow: %v", err)
	}
	initial := read()
	if initial.Kind != KindWeek || initial.Week != "2025-W35" || initial.Exists {
		t.Errorf("follow snapshot = %+v", initial)
	}
	docs.Merge(ctx, "households/demo/weeks/2025-W34", docstore.Document{"chores": map[string]any{"x": map[string]any{}}})
	docs.Merge(ctx, "households/demo/weeks/2025-W35", docstore.Document{"chores": map[string]any{}})
	if got := read(); got.Week != "2025-W35" || !got.Exists {
		t.Errorf("followed week message = %+v", got)
	}
}

func TestHandleWebSocketRequiresHousehold(t *testing.T) {
	hub := NewHub(logging.Discard())
	rec := httptest.NewRecorder()
	HandleWebSocket(hub, nil)(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
