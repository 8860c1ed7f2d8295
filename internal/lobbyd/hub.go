package lobbyd

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// hub owns every socket attached to one lobby and fans frames out to all
// of them. One goroutine per lobby; clients never touch the map directly.
// When the last socket unregisters the hub retires itself from the server's
// registry and exits; done is closed so anyone holding a stale pointer can
// re-fetch a live hub instead of blocking on a dead channel.
type hub struct {
	code       string
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	retire     func()
}

func newHub(code string) *hub {
	return &hub{
		code:       code,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				_ = c.conn.Close()
			}
			if len(h.clients) == 0 {
				h.retire()
				close(h.done)
				log.Debug().Str("lobby", h.code).Msg("hub retired")
				return
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					_ = c.conn.Close()
				}
			}
		}
	}
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("lobby", c.hub.code).Msg("ws read closed")
			}
			return
		}
		// clients relay frames through the lobby, server-side frames come
		// in through the same channel
		c.hub.broadcast <- data
	}
}

func (c *client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
