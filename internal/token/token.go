package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotAuthenticated = errors.New("not_authenticated")
	ErrRefreshRejected  = errors.New("refresh_rejected")
)

// Pair is an access/refresh credential pair with an absolute expiry.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (p Pair) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Add(leeway).Before(p.ExpiresAt)
}

// Persister keeps the pair across restarts. Implementations live with the
// platform layer (keychain, file); tests use an in-memory one.
type Persister interface {
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
}

// Lifecycle owns one credential pair and hands out a valid access token or
// an error, never a stale token. Concurrent refreshes collapse into a single
// in-flight exchange keyed by the refresh credential.
type Lifecycle struct {
	endpoint string
	clientID string
	client   *http.Client
	persist  Persister
	now      func() time.Time
	leeway   time.Duration

	mu   sync.Mutex
	pair Pair
	sf   singleflight.Group
}

func NewLifecycle(endpoint, clientID string, persist Persister) *Lifecycle {
	return &Lifecycle{
		endpoint: endpoint,
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
		persist:  persist,
		now:      time.Now,
		leeway:   30 * time.Second,
	}
}

// SetPair installs a freshly authorized pair (initial login flow is outside
// this package).
func (l *Lifecycle) SetPair(ctx context.Context, p Pair) {
	l.mu.Lock()
	l.pair = p
	l.mu.Unlock()
	if l.persist != nil {
		if err := l.persist.Save(ctx, p); err != nil {
			log.Warn().Err(err).Msg("token pair persist failed")
		}
	}
}

// Restore loads the persisted pair, if any.
func (l *Lifecycle) Restore(ctx context.Context) error {
	if l.persist == nil {
		return nil
	}
	p, err := l.persist.Load(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.pair = p
	l.mu.Unlock()
	return nil
}

// AccessToken returns a token valid for at least the configured leeway,
// refreshing first when needed. It fails closed: any refresh failure yields
// an error and never a stale token. A rejected refresh clears the stored
// pair so the caller can route to re-authentication.
func (l *Lifecycle) AccessToken(ctx context.Context) (string, error) {
	l.mu.Lock()
	pair := l.pair
	l.mu.Unlock()

	if pair.AccessToken != "" && !pair.Expired(l.now(), l.leeway) {
		return pair.AccessToken, nil
	}
	if pair.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}

	v, err, _ := l.sf.Do(pair.RefreshToken, func() (any, error) {
		return l.refresh(ctx, pair.RefreshToken)
	})
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			l.clear(ctx)
		}
		return "", err
	}
	return v.(Pair).AccessToken, nil
}

func (l *Lifecycle) refresh(ctx context.Context, refreshToken string) (Pair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", l.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Pair{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.client.Do(req)
	if err != nil {
		return Pair{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return Pair{}, ErrRefreshRejected
	default:
		return Pair{}, fmt.Errorf("token endpoint status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Pair{}, fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return Pair{}, ErrRefreshRejected
	}

	next := Pair{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    l.now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	// some providers rotate the refresh token only sometimes
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}

	l.mu.Lock()
	l.pair = next
	l.mu.Unlock()
	if l.persist != nil {
		if err := l.persist.Save(ctx, next); err != nil {
			log.Warn().Err(err).Msg("token pair persist failed")
		}
	}
	return next, nil
}

func (l *Lifecycle) clear(ctx context.Context) {
	l.mu.Lock()
	l.pair = Pair{}
	l.mu.Unlock()
	if l.persist != nil {
		_ = l.persist.Clear(ctx)
	}
}
