package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"vinyl-countdown/internal/game"
)

const mutateRetries = 16

// Redis stores each session as one JSON document keyed by lobby code and
// fans out committed snapshots over pub/sub. Mutations are optimistic:
// WATCH the key, apply the transform to the decoded copy, commit with a
// transactional SET, retry on interleaving writers.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func sessionKey(code string) string     { return "session:" + code }
func sessionChannel(code string) string { return "session:" + code + ":updates" }

// wireUpdate is the pub/sub envelope. The document itself stays a bare
// session so it round-trips without wrapper noise.
type wireUpdate struct {
	Deleted bool          `json:"deleted,omitempty"`
	Session *game.Session `json:"session,omitempty"`
}

func (r *Redis) Create(ctx context.Context, s *game.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.Code), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	r.publish(ctx, s.Code, wireUpdate{Session: s})
	return nil
}

func (r *Redis) Get(ctx context.Context, code string) (*game.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s game.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *Redis) Mutate(ctx context.Context, code string, transform func(*game.Session) error) (*game.Session, error) {
	key := sessionKey(code)
	var committed *game.Session

	for attempt := 0; attempt < mutateRetries; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			var s game.Session
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if err := transform(&s); err != nil {
				return err
			}
			payload, err := json.Marshal(&s)
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			if err == nil {
				committed = &s
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, code, wireUpdate{Session: committed})
		return committed, nil
	}
	return nil, ErrConflict
}

func (r *Redis) Delete(ctx context.Context, code string) error {
	n, err := r.rdb.Del(ctx, sessionKey(code)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	r.publish(ctx, code, wireUpdate{Deleted: true})
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, code string) (<-chan Update, func(), error) {
	ps := r.rdb.Subscribe(ctx, sessionChannel(code))
	// force the subscription onto the wire before the initial snapshot so no
	// commit lands in the gap between the two
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Update, 16)
	if s, err := r.Get(ctx, code); err == nil {
		out <- Update{Session: s}
	}

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var u wireUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				log.Warn().Str("code", code).Err(err).Msg("malformed session update dropped")
				continue
			}
			if u.Deleted {
				out <- Update{Deleted: true}
				return
			}
			if u.Session == nil {
				continue
			}
			out <- Update{Session: u.Session}
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}

func (r *Redis) publish(ctx context.Context, code string, u wireUpdate) {
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(ctx, sessionChannel(code), payload).Err(); err != nil {
		log.Warn().Str("code", code).Err(err).Msg("session update publish failed")
	}
}
