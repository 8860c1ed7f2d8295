package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func fastChannel(base string) *Channel {
	c := NewChannel(base)
	c.Backoff = []time.Duration{0, time.Millisecond, 2 * time.Millisecond}
	c.MaxAttempts = 4
	return c
}

func TestChannelParsesKnownAndUnknownFrames(t *testing.T) {
	frames := []string{
		`{"type":"player_joined","lobby_id":"AB12","player_name":"Linus"}`,
		`{"type":"state_changed","lobby_id":"AB12","state":"in_progress"}`,
		`{"type":"player_left","lobby_id":"AB12","player_name":"Linus"}`,
		`{"type":"message","lobby_id":"AB12","payload":{"text":"hi"}}`,
		`{"type":"confetti_burst","lobby_id":"AB12","payload":{"n":3}}`,
		`this is not json at all`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// hold the connection open so the test drains at leisure
		time.Sleep(2 * time.Second)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := fastChannel(wsBase(srv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Connect(ctx, "AB12")
	defer c.Disconnect()

	want := []EventKind{KindPlayerJoined, KindStateChanged, KindPlayerLeft, KindMessage, KindRaw, KindRaw}
	for i, kind := range want {
		ev := recvEvent(t, c.Events())
		if ev.Kind != kind {
			t.Fatalf("event %d kind = %s, want %s", i, ev.Kind, kind)
		}
		if kind == KindPlayerJoined && ev.PlayerName != "Linus" {
			t.Fatalf("player name = %q", ev.PlayerName)
		}
		if kind == KindStateChanged && ev.State != "in_progress" {
			t.Fatalf("state = %q", ev.State)
		}
	}
}

func TestChannelReconnectBudget(t *testing.T) {
	var dials int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&dials, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := fastChannel(wsBase(srv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Connect(ctx, "AB12")

	ev := recvEvent(t, c.Events())
	if ev.Kind != KindDropped {
		t.Fatalf("event = %s, want dropped", ev.Kind)
	}
	// initial dial plus one retry per allowed attempt
	if got := atomic.LoadInt64(&dials); got != int64(c.MaxAttempts)+1 {
		t.Fatalf("dials = %d, want %d", got, c.MaxAttempts+1)
	}
}

func TestChannelReconnectsAfterDrop(t *testing.T) {
	var dials int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&dials, 1)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// first connection dies straight away
			_ = conn.Close()
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"state_changed","state":"waiting"}`))
		time.Sleep(2 * time.Second)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := fastChannel(wsBase(srv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Connect(ctx, "AB12")
	defer c.Disconnect()

	ev := recvEvent(t, c.Events())
	if ev.Kind != KindStateChanged {
		t.Fatalf("event after reconnect = %s, want state_changed", ev.Kind)
	}
	if atomic.LoadInt64(&dials) < 2 {
		t.Fatalf("no reconnect happened")
	}
}

func TestRedialAfterDropIsImmediate(t *testing.T) {
	var mu sync.Mutex
	var dialTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dialTimes = append(dialTimes, time.Now())
		n := len(dialTimes)
		mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			_ = conn.Close()
			return
		}
		time.Sleep(2 * time.Second)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := NewChannel(wsBase(srv))
	c.Backoff = []time.Duration{0, 300 * time.Millisecond, 600 * time.Millisecond}
	c.MaxAttempts = 4
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Connect(ctx, "AB12")
	defer c.Disconnect()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dialTimes) >= 2
	})

	mu.Lock()
	gap := dialTimes[1].Sub(dialTimes[0])
	mu.Unlock()
	// the counter reset on the successful open, so the redial after the
	// drop takes the zero-delay table entry, not the 300ms one
	if gap >= 150*time.Millisecond {
		t.Fatalf("redial after drop waited %v, want immediate", gap)
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	var mu sync.Mutex
	var dialTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dialTimes = append(dialTimes, time.Now())
		mu.Unlock()
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChannel(wsBase(srv))
	c.Backoff = []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	c.MaxAttempts = 4
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Connect(ctx, "AB12")

	if ev := recvEvent(t, c.Events()); ev.Kind != KindDropped {
		t.Fatalf("event = %s, want dropped", ev.Kind)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dialTimes) != c.MaxAttempts+1 {
		t.Fatalf("dials = %d, want %d", len(dialTimes), c.MaxAttempts+1)
	}
	// delay before attempt n+1 is the table entry for n consecutive
	// failures, capped at the last entry
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond, 200 * time.Millisecond}
	for i, floor := range want {
		gap := dialTimes[i+1].Sub(dialTimes[i])
		if gap < floor {
			t.Fatalf("gap before dial %d = %v, want >= %v", i+2, gap, floor)
		}
	}
}

func TestConnectSupersedesPriorLobby(t *testing.T) {
	var active int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)
		lobby := strings.TrimPrefix(r.URL.Path, "/ws/")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","lobby_id":"`+lobby+`"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := fastChannel(wsBase(srv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Connect(ctx, "AAAA")
	if ev := recvEvent(t, c.Events()); ev.LobbyID != "AAAA" {
		t.Fatalf("first lobby = %q", ev.LobbyID)
	}

	c.Connect(ctx, "BBBB")
	defer c.Disconnect()
	// the old socket must be gone; only BBBB remains
	deadline := time.Now().Add(3 * time.Second)
	for {
		ev := recvEvent(t, c.Events())
		if ev.LobbyID == "BBBB" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never heard from superseding lobby")
		}
	}
	waitFor(t, func() bool { return atomic.LoadInt64(&active) == 1 })
}

func TestDisconnectAbandonsReconnect(t *testing.T) {
	var dials int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&dials, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChannel(wsBase(srv))
	c.Backoff = []time.Duration{0, 200 * time.Millisecond}
	c.MaxAttempts = 50
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Connect(ctx, "AB12")
	waitFor(t, func() bool { return atomic.LoadInt64(&dials) >= 1 })
	c.Disconnect()

	settled := atomic.LoadInt64(&dials)
	time.Sleep(500 * time.Millisecond)
	if got := atomic.LoadInt64(&dials); got > settled+1 {
		t.Fatalf("dials kept happening after disconnect: %d -> %d", settled, got)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewChannel("ws://127.0.0.1:0/ws")
	if err := c.Send(Message{Type: TypeMessage}); err != ErrNotConnected {
		t.Fatalf("send = %v, want not_connected", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never became true")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
