package store

import (
	"context"
	"sync"

	"vinyl-countdown/internal/game"
)

// Memory is the single-process SessionStore double. It honors the same
// contract as the Redis store: serialized mutations per code, snapshot
// delivery in commit order, terminal deleted signal.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*game.Session
	subs     map[string]map[int]chan Update
	nextSub  int
}

func NewMemory() *Memory {
	return &Memory{
		sessions: map[string]*game.Session{},
		subs:     map[string]map[int]chan Update{},
	}
}

func (m *Memory) Create(ctx context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Code]; ok {
		return ErrAlreadyExists
	}
	m.sessions[s.Code] = s.Clone()
	m.broadcastLocked(s.Code, Update{Session: s.Clone()})
	return nil
}

func (m *Memory) Get(ctx context.Context, code string) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Mutate(ctx context.Context, code string, transform func(*game.Session) error) (*game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[code]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := transform(next); err != nil {
		return nil, err
	}
	m.sessions[code] = next
	m.broadcastLocked(code, Update{Session: next.Clone()})
	return next.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, code string) (<-chan Update, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Update, 16)
	if s, ok := m.sessions[code]; ok {
		ch <- Update{Session: s.Clone()}
	}
	id := m.nextSub
	m.nextSub++
	if m.subs[code] == nil {
		m.subs[code] = map[int]chan Update{}
	}
	m.subs[code][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[code][id]; ok {
			delete(m.subs[code], id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[code]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, code)
	m.broadcastLocked(code, Update{Deleted: true})
	for id, ch := range m.subs[code] {
		delete(m.subs[code], id)
		close(ch)
	}
	return nil
}

func (m *Memory) broadcastLocked(code string, u Update) {
	for id, ch := range m.subs[code] {
		select {
		case ch <- u:
		default:
			// subscriber is not draining; drop it rather than block commits
			delete(m.subs[code], id)
			close(ch)
		}
	}
}
