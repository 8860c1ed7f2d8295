package game

import "errors"

var (
	ErrNotHost        = errors.New("not_host")
	ErrNotYourTurn    = errors.New("not_your_turn")
	ErrAlreadyStarted = errors.New("already_started")
	ErrEmptyPlaylist  = errors.New("empty_playlist")
	ErrInvalidState   = errors.New("invalid_state")
)

// Scoring is the distance-tiered guess scoring policy. The zero value is not
// usable; callers take DefaultScoring unless a lobby overrides it.
type Scoring struct {
	Exact      int
	Near       int
	Far        int
	NearWindow int
	FarWindow  int
}

var DefaultScoring = Scoring{Exact: 3, Near: 2, Far: 1, NearWindow: 2, FarWindow: 5}

func (sc Scoring) Points(distance int) int {
	if distance < 0 {
		distance = -distance
	}
	switch {
	case distance == 0:
		return sc.Exact
	case distance <= sc.NearWindow:
		return sc.Near
	case distance <= sc.FarWindow:
		return sc.Far
	default:
		return 0
	}
}

func requireHost(s *Session, actorID string) error {
	if actorID != s.Host.ID {
		return ErrNotHost
	}
	return nil
}

func requireState(s *Session, want State) error {
	if s.State != want {
		return ErrInvalidState
	}
	return nil
}
