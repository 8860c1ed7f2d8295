package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vinyl-countdown/internal/game"
)

func testSession(code string) *game.Session {
	return game.NewSession(code, game.Player{ID: "host-1", Name: "Ada"}, 3, game.ModeGuessTheYear)
}

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Create(ctx, testSession("AAAA22")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, testSession("AAAA22")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate create = %v, want already_exists", err)
	}
	s, err := m.Get(ctx, "AAAA22")
	if err != nil || s.Code != "AAAA22" {
		t.Fatalf("get = %v, %v", s, err)
	}
	if _, err := m.Get(ctx, "ZZZZ99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing = %v, want session_not_found", err)
	}
}

func TestMemoryMutateCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, testSession("AAAA22"))

	boom := errors.New("boom")
	_, err := m.Mutate(ctx, "AAAA22", func(s *game.Session) error {
		s.TotalRounds = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("mutate = %v, want transform error", err)
	}
	s, _ := m.Get(ctx, "AAAA22")
	if s.TotalRounds == 99 {
		t.Fatalf("failed transform leaked into committed state")
	}
}

func TestMemoryConcurrentJoinsKeepBothPlayers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, testSession("AAAA22"))

	const joiners = 8
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Mutate(ctx, "AAAA22", func(s *game.Session) error {
				return game.Join(s, game.Player{ID: fmt.Sprintf("guest-%d", i)})
			})
			if err != nil {
				t.Errorf("join %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	s, _ := m.Get(ctx, "AAAA22")
	if len(s.Players) != joiners+1 {
		t.Fatalf("players = %d, want %d", len(s.Players), joiners+1)
	}
	if len(s.Scores) != joiners+1 {
		t.Fatalf("scores = %d entries, want %d", len(s.Scores), joiners+1)
	}
}

func TestMemorySubscribeDeliversCommitsThenDeleted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, testSession("AAAA22"))

	updates, cancel, err := m.Subscribe(ctx, "AAAA22")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := recvUpdate(t, updates)
	if first.Session == nil || first.Session.Code != "AAAA22" {
		t.Fatalf("initial snapshot = %+v", first)
	}

	_, _ = m.Mutate(ctx, "AAAA22", func(s *game.Session) error {
		return game.Join(s, game.Player{ID: "guest-1"})
	})
	second := recvUpdate(t, updates)
	if second.Session == nil || len(second.Session.Players) != 2 {
		t.Fatalf("post-join snapshot = %+v", second)
	}

	if err := m.Delete(ctx, "AAAA22"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	last := recvUpdate(t, updates)
	if !last.Deleted {
		t.Fatalf("expected deleted signal, got %+v", last)
	}
	if _, ok := <-updates; ok {
		t.Fatalf("channel still open after deletion")
	}
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Create(ctx, testSession("AAAA22"))

	updates, cancel, _ := m.Subscribe(ctx, "AAAA22")
	recvUpdate(t, updates)
	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("channel open after cancel")
	}
	// a later commit must not panic on the closed subscription
	if _, err := m.Mutate(ctx, "AAAA22", func(s *game.Session) error { return nil }); err != nil {
		t.Fatalf("mutate after cancel: %v", err)
	}
}

func recvUpdate(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
		return Update{}
	}
}
