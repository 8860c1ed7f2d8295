package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("not_connected")

// DefaultBackoff is the reconnect delay table: index n is the delay after n
// consecutive failures, capped at the last entry.
var DefaultBackoff = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

const defaultMaxAttempts = 20

// Channel is the single logical realtime connection to a lobby. At most one
// websocket is live per Channel: Connect supersedes any prior connection and
// any pending reconnect, Disconnect abandons both. Unexpected closures
// reconnect with the backoff table until the attempt budget runs out, at
// which point a terminal Dropped event is emitted.
type Channel struct {
	baseURL string
	dialer  *websocket.Dialer

	// tunable before the first Connect
	Backoff     []time.Duration
	MaxAttempts int

	mu       sync.Mutex
	conn     *websocket.Conn
	lobbyID  string
	gen      int
	failures int

	events chan Event
}

func NewChannel(baseURL string) *Channel {
	return &Channel{
		baseURL:     baseURL,
		dialer:      websocket.DefaultDialer,
		Backoff:     DefaultBackoff,
		MaxAttempts: defaultMaxAttempts,
		events:      make(chan Event, 64),
	}
}

// Events is the inbound stream. Deliveries are dropped, not blocked on, when
// the consumer falls 64 events behind.
func (c *Channel) Events() <-chan Event { return c.events }

// Connect starts (or re-targets) the channel at the given lobby. A previous
// connection for any lobby is closed first.
func (c *Channel) Connect(ctx context.Context, lobbyID string) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.lobbyID = lobbyID
	c.failures = 0
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	go c.run(ctx, gen, lobbyID)
}

// Disconnect closes the connection and abandons any scheduled reconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.lobbyID = ""
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// Send writes a frame on the live connection.
func (c *Channel) Send(m Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) run(ctx context.Context, gen int, lobbyID string) {
	for {
		if !c.current(gen) {
			return
		}
		conn, resp, err := c.dialer.DialContext(ctx, c.baseURL+"/"+lobbyID, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if !c.backoffWait(ctx, gen, lobbyID, true) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.failures = 0
		c.mu.Unlock()

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()

		// losing an established connection is not a dial failure: the
		// counter was reset on open, so the redial is immediate
		if !c.backoffWait(ctx, gen, lobbyID, false) {
			return
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.emit(parseEvent(data))
	}
}

// backoffWait sleeps out the next reconnect delay, indexed by the count of
// consecutive failed dials. It reports false when the reconnect should be
// abandoned: superseded, disconnected, context done, or attempt budget
// exhausted. failed says whether the dial just attempted actually failed.
func (c *Channel) backoffWait(ctx context.Context, gen int, lobbyID string, failed bool) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	if failed {
		c.failures++
	}
	n := c.failures
	if n > c.MaxAttempts {
		c.mu.Unlock()
		log.Warn().Str("lobby_id", lobbyID).Int("attempts", n-1).Msg("reconnect budget exhausted")
		c.emit(Event{Kind: KindDropped, LobbyID: lobbyID})
		return false
	}
	idx := n
	if idx >= len(c.Backoff) {
		idx = len(c.Backoff) - 1
	}
	delay := c.Backoff[idx]
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
	// the lobby may have been superseded while we slept
	return c.current(gen)
}

func (c *Channel) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("type", ev.Type).Msg("slow consumer, realtime event dropped")
	}
}
