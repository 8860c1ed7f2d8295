package lobbyd

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"vinyl-countdown/internal/game"
	"vinyl-countdown/internal/lobby"
	"vinyl-countdown/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	// dev backend, runs on localhost only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the development lobby backend: a REST surface for lobby
// bookkeeping plus one websocket fan-out hub per lobby.
type Server struct {
	mu      sync.Mutex
	lobbies map[string]*lobby.Lobby
	hubs    map[string]*hub
	rng     *rand.Rand
}

func NewServer() *Server {
	return &Server{
		lobbies: make(map[string]*lobby.Lobby),
		hubs:    make(map[string]*hub),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(requestLogger())
		r.Post("/lobbies", s.handleCreate)
		r.Get("/lobbies/{code}", s.handleGet)
		r.Post("/lobbies/{code}/join", s.handleJoin)
	})
	r.Get("/ws/{code}", s.handleWS)
	return r
}

func requestLogger() func(http.Handler) http.Handler {
	return httplog.RequestLogger(
		slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})),
		&httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
			LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
				return []slog.Attr{
					slog.String("request_id", chimw.GetReqID(req.Context())),
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
				}
			},
		},
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "lobbyd"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HostName string `json:"host_name"`
		Rounds   int    `json:"rounds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.HostName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Rounds < 1 {
		req.Rounds = 10
	}

	s.mu.Lock()
	code := game.NewCode(s.rng)
	for s.lobbies[code] != nil {
		code = game.NewCode(s.rng)
	}
	lb := &lobby.Lobby{
		Code:     code,
		HostName: req.HostName,
		Rounds:   req.Rounds,
		Players:  []string{req.HostName},
		State:    "waiting",
	}
	s.lobbies[code] = lb
	out := *lb
	s.mu.Unlock()

	log.Info().Str("code", code).Str("host", req.HostName).Msg("lobby created")
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	s.mu.Lock()
	lb := s.lobbies[code]
	var out lobby.Lobby
	if lb != nil {
		out = *lb
	}
	s.mu.Unlock()

	if lb == nil {
		writeError(w, http.StatusNotFound, "lobby_not_found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req struct {
		PlayerName string `json:"player_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.mu.Lock()
	lb := s.lobbies[code]
	if lb == nil {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "lobby_not_found")
		return
	}
	known := false
	for _, name := range lb.Players {
		if name == req.PlayerName {
			known = true
			break
		}
	}
	if !known {
		lb.Players = append(lb.Players, req.PlayerName)
	}
	out := *lb
	s.mu.Unlock()

	if !known {
		s.publish(code, ws.Message{
			Type:       ws.TypePlayerJoined,
			LobbyID:    code,
			PlayerName: req.PlayerName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	s.mu.Lock()
	known := s.lobbies[code] != nil
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusNotFound, "lobby_not_found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("ws upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	for {
		h := s.hubFor(code)
		c.hub = h
		select {
		case h.register <- c:
			go c.writePump()
			go c.readPump()
			return
		case <-h.done:
			// hub retired between lookup and register; fetch a fresh one
		}
	}
}

// publish pushes a server-originated frame into the lobby's hub, if anyone
// is listening. A lobby with no sockets has no hub and nothing to tell.
func (s *Server) publish(code string, msg ws.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for {
		s.mu.Lock()
		h := s.hubs[code]
		s.mu.Unlock()
		if h == nil {
			return
		}
		select {
		case h.broadcast <- data:
			return
		case <-h.done:
		}
	}
}

func (s *Server) hubFor(code string) *hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h := s.hubs[code]; h != nil {
		return h
	}
	h := newHub(code)
	h.retire = func() {
		s.mu.Lock()
		if s.hubs[code] == h {
			delete(s.hubs, code)
		}
		s.mu.Unlock()
	}
	s.hubs[code] = h
	go h.run()
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}
