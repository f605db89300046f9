package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"finance-ledger/internal/email"
)

// ErrTokenRefresh marks a source run that lost mailbox access: the refresh
// grant failed or the refresh budget was spent.
var ErrTokenRefresh = errors.New("failed to refresh token")

// TokenRefresher exchanges a user's refresh token for a new access token and
// persists it
type TokenRefresher interface {
	RefreshUser(ctx context.Context, userID int64, refreshToken string) (string, error)
}

// tokenSession is the access token of one mailbox for one source run. It is
// shared by the concurrent fetches of that run. Each refresh bumps the
// generation; a 401 only triggers a refresh if the failed call used the
// current generation, so simultaneous failures refresh once.
type tokenSession struct {
	mu           sync.Mutex
	userID       int64
	refreshToken string
	token        string
	generation   int
	refreshes    int
	maxRefreshes int
	refresher    TokenRefresher
	failure      error
}

func newTokenSession(userID int64, accessToken, refreshToken string, refresher TokenRefresher, maxRefreshes int) *tokenSession {
	return &tokenSession{
		userID:       userID,
		token:        accessToken,
		refreshToken: refreshToken,
		refresher:    refresher,
		maxRefreshes: maxRefreshes,
	}
}

func (s *tokenSession) current() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.generation
}

// Refreshes returns how many refreshes this session performed
func (s *tokenSession) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// renew handles a 401 seen on a call made with generation gen. A failure is
// sticky: every later caller gets the same error without another grant.
func (s *tokenSession) renew(ctx context.Context, gen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return s.failure
	}
	if gen != s.generation {
		return nil
	}
	if s.refresher == nil || s.refreshes >= s.maxRefreshes {
		s.failure = fmt.Errorf("%w: limit of %d refreshes per run reached", ErrTokenRefresh, s.maxRefreshes)
		return s.failure
	}

	s.refreshes++
	token, err := s.refresher.RefreshUser(ctx, s.userID, s.refreshToken)
	if err != nil {
		s.failure = fmt.Errorf("%w: %w", ErrTokenRefresh, err)
		return s.failure
	}

	s.token = token
	s.generation++
	return nil
}

// do runs call with the current token and retries it after a successful
// refresh when it fails with 401. The loop ends because every pass either
// returns or observes a newer generation, and generations are bounded by
// maxRefreshes.
func (s *tokenSession) do(ctx context.Context, call func(token string) error) error {
	for {
		token, gen := s.current()
		err := call(token)
		if err == nil || !email.IsUnauthorized(err) {
			return err
		}
		if rerr := s.renew(ctx, gen); rerr != nil {
			return rerr
		}
	}
}
