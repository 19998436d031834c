// Package refresh keeps the stored access token valid by exchanging the
// refresh token before the access token expires.
package refresh

import (
	"context"
	"time"

	ierrors "github.com/jrsteele09/go-admin-client/internal/errors"
	"github.com/jrsteele09/go-admin-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// flightKey is shared by every refresh; at most one exchange is in flight.
const flightKey = "refresh"

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (token.Pair, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	return f(ctx, refreshToken)
}

var _ oauth2.TokenSource = (*Scheduler)(nil)

// Scheduler coordinates refreshes for one token.Store.
type Scheduler struct {
	store     *token.Store
	refresher Refresher
	group     singleflight.Group
}

func NewScheduler(store *token.Store, refresher Refresher) *Scheduler {
	return &Scheduler{
		store:     store,
		refresher: refresher,
	}
}

// Refresh exchanges the stored refresh token and persists the new pair.
// Concurrent callers share one exchange. A caller whose ctx ends stops waiting,
// but the exchange itself runs to completion for the others.
func (s *Scheduler) Refresh(ctx context.Context) (token.Pair, error) {
	ch := s.group.DoChan(flightKey, func() (any, error) {
		return s.exchange(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return token.Pair{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return token.Pair{}, res.Err
		}
		return res.Val.(token.Pair), nil
	}
}

func (s *Scheduler) exchange(ctx context.Context) (token.Pair, error) {
	current, _ := s.store.Pair()
	if current.RefreshToken == "" {
		return token.Pair{}, errors.Wrap(ierrors.ErrNoRefreshToken, "[Scheduler.Refresh]")
	}

	pair, err := s.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[Scheduler.Refresh] exchange refresh token")
	}

	// Backends that do not rotate refresh tokens leave them out of the response.
	if pair.RefreshToken == "" {
		pair.RefreshToken = current.RefreshToken
		pair.RefreshExpiresAt = current.RefreshExpiresAt
	}
	if pair.UserID == "" {
		pair.UserID = current.UserID
	}

	stored, err := s.store.StoreTokensIfRefresh(current.RefreshToken, pair)
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[Scheduler.Refresh] store refreshed tokens")
	}
	if !stored {
		// A login or logout replaced the tokens while the exchange ran; the
		// newer tokens stand and the exchanged pair is dropped.
		log.Debug().Msg("tokens changed during refresh, discarding refreshed pair")
		latest, ok := s.store.Pair()
		if !ok {
			return token.Pair{}, errors.Wrap(ierrors.ErrNotAuthenticated, "[Scheduler.Refresh] tokens cleared during refresh")
		}
		return latest, nil
	}
	log.Debug().Str("user_id", pair.UserID).Time("expires_at", pair.AccessExpiresAt).Msg("access token refreshed")
	return pair, nil
}

// EnsureValid reports whether a usable access token is stored, refreshing it
// first when it is expired or about to expire. It clears the stored tokens when
// the refresh token has expired or the refresh fails, unless they were replaced
// in the meantime.
func (s *Scheduler) EnsureValid(ctx context.Context) bool {
	if s.store.AccessToken() == "" {
		return false
	}
	refreshToken := s.store.RefreshToken()
	if s.store.IsRefreshTokenExpired() {
		log.Info().Msg("refresh token expired, clearing session tokens")
		s.clear(refreshToken)
		return false
	}
	if !s.store.IsTokenExpired() && !s.store.ShouldRefreshToken() {
		return true
	}

	if _, err := s.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			// This caller gave up waiting; the shared exchange decides the outcome.
			return false
		}
		log.Warn().Err(err).Msg("token refresh failed, clearing session tokens")
		s.clear(refreshToken)
		return false
	}
	return true
}

// Token implements oauth2.TokenSource.
func (s *Scheduler) Token() (*oauth2.Token, error) {
	if !s.EnsureValid(context.Background()) {
		return nil, errors.Wrap(ierrors.ErrNotAuthenticated, "[Scheduler.Token]")
	}
	pair, ok := s.store.Pair()
	if !ok {
		return nil, errors.Wrap(ierrors.ErrNotAuthenticated, "[Scheduler.Token]")
	}
	return pair.OAuth2Token(), nil
}

// Run calls EnsureValid every interval while tokens are stored, until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.store.AccessToken() == "" {
				continue
			}
			if !s.EnsureValid(ctx) {
				log.Debug().Msg("background token check found no valid session")
			}
		}
	}
}

// clear removes the stored tokens if refreshToken is still the stored one.
func (s *Scheduler) clear(refreshToken string) {
	cleared, err := s.store.ClearIfRefresh(refreshToken)
	if err != nil {
		log.Err(err).Msg("clearing session tokens")
		return
	}
	if !cleared {
		log.Debug().Msg("tokens replaced meanwhile, leaving them in place")
	}
}
