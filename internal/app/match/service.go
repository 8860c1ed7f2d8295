package match

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"vinyl-countdown/internal/game"
	"vinyl-countdown/internal/store"
)

const codeAttempts = 32

// Service is the game orchestrator: it turns UI intents into engine
// transforms committed through the session store, and folds the subscribed
// snapshot stream into screen transitions. One Service is one client.
type Service struct {
	sessions store.SessionStore
	catalog  Catalog
	scoring  game.Scoring

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	self   game.Player
	code   string
	gen    int
	cancel func()

	updates chan Snapshot
}

func NewService(sessions store.SessionStore, catalog Catalog) *Service {
	return &Service{
		sessions: sessions,
		catalog:  catalog,
		scoring:  game.DefaultScoring,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		updates:  make(chan Snapshot, 16),
	}
}

// Updates is the screen transition stream for the presentation layer.
func (s *Service) Updates() <-chan Snapshot { return s.updates }

// Self returns this client's player identity, zero until create or join.
func (s *Service) Self() game.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// NewGuest mints an anonymous local identity for players without an account.
func NewGuest(name string) game.Player {
	return game.Player{ID: store.NewGuestID(), Name: name}
}

// Login resolves the authenticated catalog profile (the host path).
func (s *Service) Login(ctx context.Context) (game.Player, error) {
	return s.catalog.GetProfile(ctx)
}

// Playlists lists the host's selectable playlists.
func (s *Service) Playlists(ctx context.Context) ([]game.Playlist, error) {
	return s.catalog.GetPlaylists(ctx)
}

// CreateGame allocates a fresh session under a new collision-checked code
// and subscribes this client to it.
func (s *Service) CreateGame(ctx context.Context, host game.Player, totalRounds int) (*game.Session, error) {
	for i := 0; i < codeAttempts; i++ {
		s.rngMu.Lock()
		code := game.NewCode(s.rng)
		s.rngMu.Unlock()

		session := game.NewSession(code, host, totalRounds, game.ModeGuessTheYear)
		err := s.sessions.Create(ctx, session)
		if err == store.ErrAlreadyExists {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.attach(ctx, host, code)
		return session, nil
	}
	return nil, ErrCodeExhaust
}

// JoinGame joins an existing session. The subscription starts only after
// the join commit confirms membership, so a client that never made it into
// players is never routed into someone else's lobby.
func (s *Service) JoinGame(ctx context.Context, code string, p game.Player) (*game.Session, error) {
	session, err := s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		return game.Join(gs, p)
	})
	if err != nil {
		return nil, err
	}
	s.attach(ctx, p, code)
	return session, nil
}

// SelectPlaylist replaces the lobby's playlist (host only, pre-start).
func (s *Service) SelectPlaylist(ctx context.Context, pl game.Playlist) (*game.Session, error) {
	code, self, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		return game.SetPlaylist(gs, self.ID, pl)
	})
}

// StartRound starts the game on the first call and advances rounds after.
// The track pool fetch happens before the commit; two hosts racing this
// call is outside the model (single host actor).
func (s *Service) StartRound(ctx context.Context) (*game.Session, error) {
	code, self, err := s.active()
	if err != nil {
		return nil, err
	}
	current, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if current.State == game.StateWaiting {
		if current.Playlist == nil {
			return nil, ErrNoPlaylist
		}
		pool, err := s.catalog.GetPlaylistTracks(ctx, current.Playlist.ID)
		if err != nil {
			return nil, err
		}
		return s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
			s.rngMu.Lock()
			defer s.rngMu.Unlock()
			return game.Start(gs, self.ID, pool, s.rng, time.Now())
		})
	}
	return s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		return game.Advance(gs, self.ID, time.Now())
	})
}

// SubmitGuess scores this client's year guess for the current round.
func (s *Service) SubmitGuess(ctx context.Context, yearGuess int) (*game.Session, error) {
	code, self, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		return game.SubmitGuess(gs, self.ID, yearGuess, s.scoring)
	})
}

// FinishGame ends the game where it stands (host only).
func (s *Service) FinishGame(ctx context.Context) (*game.Session, error) {
	code, self, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		return game.Finish(gs, self.ID)
	})
}

// LeaveGame detaches this client. The subscription is torn down before the
// store-side removal so our own departure never reads as an eviction. A
// departing host deletes the session for everyone.
func (s *Service) LeaveGame(ctx context.Context) error {
	s.mu.Lock()
	code := s.code
	self := s.self
	s.detachLocked()
	s.mu.Unlock()
	if code == "" {
		return ErrNoSession
	}

	current, err := s.sessions.Get(ctx, code)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if current.Host.ID == self.ID {
		return s.sessions.Delete(ctx, code)
	}
	_, err = s.sessions.Mutate(ctx, code, func(gs *game.Session) error {
		game.Leave(gs, self.ID)
		return nil
	})
	return err
}

// Reset discards the current session and opens a fresh waiting one for the
// same identity ("play again").
func (s *Service) Reset(ctx context.Context, totalRounds int) (*game.Session, error) {
	s.mu.Lock()
	self := s.self
	s.mu.Unlock()
	if err := s.LeaveGame(ctx); err != nil && err != ErrNoSession {
		return nil, err
	}
	return s.CreateGame(ctx, self, totalRounds)
}

// ScreenFor maps a session snapshot to the screen this client belongs on.
// Non-members always land Home, so a just-evicted observer is never routed
// into a lobby it left.
func (s *Service) ScreenFor(gs *game.Session) Screen {
	if gs == nil {
		return ScreenHome
	}
	s.mu.Lock()
	selfID := s.self.ID
	s.mu.Unlock()
	if !gs.HasPlayer(selfID) {
		return ScreenHome
	}
	switch gs.State {
	case game.StateInProgress:
		return ScreenGame
	case game.StateFinished:
		return ScreenResults
	default:
		return ScreenLobby
	}
}

// attach points this client at a session, replacing any prior subscription.
func (s *Service) attach(ctx context.Context, self game.Player, code string) {
	s.mu.Lock()
	s.detachLocked()
	s.self = self
	s.code = code
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	updates, cancel, err := s.sessions.Subscribe(ctx, code)
	if err != nil {
		log.Warn().Str("code", code).Err(err).Msg("session subscribe failed")
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		for u := range updates {
			if !s.currentGen(gen) {
				return
			}
			if u.Deleted {
				s.emit(Snapshot{Screen: ScreenHome})
				return
			}
			s.emit(Snapshot{Screen: s.ScreenFor(u.Session), Session: u.Session})
		}
	}()
}

func (s *Service) detachLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.code = ""
	s.gen++
}

func (s *Service) currentGen(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Service) active() (string, game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return "", game.Player{}, ErrNoSession
	}
	return s.code, s.self, nil
}

func (s *Service) emit(snap Snapshot) {
	select {
	case s.updates <- snap:
	default:
		log.Warn().Msg("slow presentation layer, snapshot dropped")
	}
}
