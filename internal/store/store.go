package store

import (
	"context"
	"errors"

	"vinyl-countdown/internal/game"
)

var (
	ErrAlreadyExists = errors.New("already_exists")
	ErrNotFound      = errors.New("session_not_found")
	ErrConflict      = errors.New("mutate_conflict")
)

// Update is one delivery on a subscription: a fresh snapshot after a
// committed mutation, or the terminal deleted signal for a removed session.
type Update struct {
	Session *game.Session
	Deleted bool
}

// SessionStore is the shared-session contract. Implementations serialize
// Mutate calls per lobby code so concurrent writers never lose each other's
// updates, and deliver snapshots to subscribers in commit order.
type SessionStore interface {
	// Create claims the code for a new session.
	Create(ctx context.Context, s *game.Session) error
	// Get returns a snapshot of the session, or ErrNotFound.
	Get(ctx context.Context, code string) (*game.Session, error)
	// Mutate applies transform to a private copy of the current session and
	// commits the result atomically. A transform error aborts the commit and
	// is returned unchanged.
	Mutate(ctx context.Context, code string, transform func(*game.Session) error) (*game.Session, error)
	// Subscribe streams the current snapshot followed by every committed
	// mutation until cancel is called or the session is deleted.
	Subscribe(ctx context.Context, code string) (<-chan Update, func(), error)
	// Delete removes the session and fires the deleted signal to subscribers.
	Delete(ctx context.Context, code string) error
}
