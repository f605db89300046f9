package workers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSession_PassesThroughOtherErrors(t *testing.T) {
	refresher := &mockRefresher{token: "new"}
	s := newTokenSession(1, "old", "r", refresher, 1)

	boom := errors.New("boom")
	err := s.do(context.Background(), func(token string) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, refresher.calls)
}

func TestTokenSession_RetriesWithRefreshedToken(t *testing.T) {
	refresher := &mockRefresher{token: "new"}
	s := newTokenSession(1, "old", "r", refresher, 1)

	var seen []string
	err := s.do(context.Background(), func(token string) error {
		seen = append(seen, token)
		if token == "old" {
			return unauthorized()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, seen)
	assert.Equal(t, 1, s.Refreshes())
}

func TestTokenSession_StaleGenerationDoesNotRefresh(t *testing.T) {
	refresher := &mockRefresher{token: "new"}
	s := newTokenSession(1, "old", "r", refresher, 1)

	require.NoError(t, s.renew(context.Background(), 0))
	require.NoError(t, s.renew(context.Background(), 0), "a 401 from the previous token reuses the new one")
	assert.Equal(t, 1, refresher.calls)

	token, gen := s.current()
	assert.Equal(t, "new", token)
	assert.Equal(t, 1, gen)
}

func TestTokenSession_FailureIsSticky(t *testing.T) {
	refresher := &mockRefresher{err: errors.New("invalid_grant")}
	s := newTokenSession(1, "old", "r", refresher, 3)

	err := s.renew(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTokenRefresh)

	err = s.renew(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTokenRefresh)
	assert.Equal(t, 1, refresher.calls)
}

func TestTokenSession_ZeroBudget(t *testing.T) {
	refresher := &mockRefresher{token: "new"}
	s := newTokenSession(1, "old", "r", refresher, 0)

	err := s.do(context.Background(), func(token string) error { return unauthorized() })
	assert.ErrorIs(t, err, ErrTokenRefresh)
	assert.Equal(t, 0, refresher.calls)
}

func TestTokenSession_ConcurrentCallers(t *testing.T) {
	refresher := &mockRefresher{token: "new"}
	s := newTokenSession(1, "old", "r", refresher, 1)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for n := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[n] = s.do(context.Background(), func(token string) error {
				if token != "new" {
					return unauthorized()
				}
				return nil
			})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, refresher.calls)
}
