package game

import (
	"fmt"
	"math/rand"
	"time"
)

// The engine is a set of pure transforms over *Session. Callers run them
// inside the store's atomic mutate so every transition commits all-or-nothing
// and concurrent clients never observe a half-applied turn.

func NewSession(code string, host Player, totalRounds int, mode Mode) *Session {
	if totalRounds < 1 {
		totalRounds = 1
	}
	return &Session{
		Code:        code,
		Host:        host,
		Players:     []Player{host},
		Mode:        mode,
		TotalRounds: totalRounds,
		Scores:      map[string]int{host.ID: 0},
		State:       StateWaiting,
		TurnState:   TurnGuessing,
	}
}

// Join appends a player while the lobby is still open. Joining twice with the
// same id is a no-op so a reconnecting guest does not duplicate itself.
func Join(s *Session, p Player) error {
	if s.State != StateWaiting {
		return ErrAlreadyStarted
	}
	if s.HasPlayer(p.ID) {
		return nil
	}
	s.Players = append(s.Players, p)
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	s.Scores[p.ID] = 0
	return nil
}

func SetPlaylist(s *Session, actorID string, pl Playlist) error {
	if err := requireHost(s, actorID); err != nil {
		return err
	}
	if err := requireState(s, StateWaiting); err != nil {
		return err
	}
	s.Playlist = &pl
	return nil
}

// Start fixes the round plan and opens the first turn. The pool is the
// playlist's usable tracks (known year, playable reference); the plan is a
// uniform Fisher-Yates draw truncated to the requested round count.
func Start(s *Session, actorID string, pool []Song, rng *rand.Rand, now time.Time) error {
	if err := requireHost(s, actorID); err != nil {
		return err
	}
	if err := requireState(s, StateWaiting); err != nil {
		return err
	}
	if len(pool) == 0 {
		return ErrEmptyPlaylist
	}
	s.Songs = PlanRounds(pool, s.TotalRounds, rng)
	s.State = StateInProgress
	s.CurrentRound = 0
	openTurn(s, now)
	return nil
}

// Advance moves to the next round, or finishes the game when the plan is
// exhausted.
func Advance(s *Session, actorID string, now time.Time) error {
	if err := requireHost(s, actorID); err != nil {
		return err
	}
	if err := requireState(s, StateInProgress); err != nil {
		return err
	}
	if s.CurrentRound+1 >= len(s.Songs) {
		s.State = StateFinished
		s.TurnState = TurnRevealed
		return nil
	}
	s.CurrentRound++
	openTurn(s, now)
	return nil
}

func openTurn(s *Session, now time.Time) {
	song := s.Songs[s.CurrentRound]
	s.CurrentSong = &song
	s.TurnState = TurnGuessing
	s.LastGuessResult = nil
	s.TurnStartTime = &now
	s.ActivePlayerID = rotationGuesser(s)
	s.Timeline = append(s.Timeline, TimelineEntry{Song: song, Placement: PlacementPending})
}

// rotationGuesser assigns the turn by round index over the live player list.
// The assignment is persisted on the session at round start, so a player
// leaving mid-round never silently moves an in-flight turn.
func rotationGuesser(s *Session) string {
	if len(s.Players) == 0 {
		return ""
	}
	return s.Players[s.CurrentRound%len(s.Players)].ID
}

// SubmitGuess scores the active guesser's year against the current song and
// reveals the turn. A second guess for the same round is rejected: the turn
// is already revealed, so the state gate reports invalid_state.
func SubmitGuess(s *Session, playerID string, yearGuess int, sc Scoring) error {
	if s.State != StateInProgress || s.TurnState != TurnGuessing {
		return ErrInvalidState
	}
	if s.CurrentSong == nil {
		return nil
	}
	if s.ActivePlayerID != "" && playerID != s.ActivePlayerID {
		return ErrNotYourTurn
	}

	distance := yearGuess - s.CurrentSong.Year
	if distance < 0 {
		distance = -distance
	}
	points := sc.Points(distance)
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	s.Scores[playerID] += points

	placement := PlacementIncorrect
	result := fmt.Sprintf("%d years off, it was %d (+%d)", distance, s.CurrentSong.Year, points)
	if distance == 0 {
		placement = PlacementCorrect
		result = fmt.Sprintf("spot on, %d (+%d)", s.CurrentSong.Year, points)
	}
	s.TurnState = TurnRevealed
	s.LastGuessResult = &result
	if n := len(s.Timeline); n > 0 {
		s.Timeline[n-1].Placement = placement
	}
	return nil
}

// Finish freezes the game where it stands.
func Finish(s *Session, actorID string) error {
	if err := requireHost(s, actorID); err != nil {
		return err
	}
	s.State = StateFinished
	s.TurnState = TurnRevealed
	return nil
}

// Leave removes a guest and their score entry. When the host leaves the whole
// session goes with them; the caller deletes the document instead of
// committing a transform.
func Leave(s *Session, playerID string) (hostLeft bool) {
	if playerID == s.Host.ID {
		return true
	}
	for i, p := range s.Players {
		if p.ID == playerID {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			break
		}
	}
	delete(s.Scores, playerID)
	if s.ActivePlayerID == playerID {
		s.ActivePlayerID = rotationGuesser(s)
	}
	return false
}
