// Package session runs the sign-in state machine: startup validation, login,
// logout, holding switches and the reaction to a lost session.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/authrpc"
	ierrors "github.com/jrsteele09/go-admin-client/internal/errors"
	"github.com/jrsteele09/go-admin-client/token"
	"github.com/jrsteele09/go-admin-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AuthAPI is the subset of the backend auth functions the controller calls.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*authrpc.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, opts ...transport.RequestOption) (*authrpc.Identity, error)
	SwitchHolding(ctx context.Context, holdingID authrpc.ID) (*authrpc.SwitchHoldingResponse, error)
}

var _ AuthAPI = (*authrpc.API)(nil)

// TokenValidator keeps the stored access token usable. Implemented by refresh.Scheduler.
type TokenValidator interface {
	EnsureValid(ctx context.Context) bool
}

// Deps are the controller's collaborators. Transport is optional; when set the
// controller registers itself as the transport's auth error handler.
type Deps struct {
	API       AuthAPI
	Tokens    *token.Store
	Validator TokenValidator
	Navigator Navigator
	Transport *transport.Client
}

// Controller owns the current Session.
type Controller struct {
	api       AuthAPI
	tokens    *token.Store
	validator TokenValidator
	navigator Navigator
	transport *transport.Client

	mu        sync.RWMutex
	state     State
	session   *Session
	loggingIn bool
	// generation changes on login and logout so results of calls started
	// before them are dropped.
	generation uint64

	redirected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

func NewController(deps Deps) (*Controller, error) {
	switch {
	case deps.API == nil:
		return nil, errors.Wrap(ierrors.ErrMissingDependency, "[NewController] auth API is required")
	case deps.Tokens == nil:
		return nil, errors.Wrap(ierrors.ErrMissingDependency, "[NewController] token store is required")
	case deps.Validator == nil:
		return nil, errors.Wrap(ierrors.ErrMissingDependency, "[NewController] token validator is required")
	case deps.Navigator == nil:
		return nil, errors.Wrap(ierrors.ErrMissingDependency, "[NewController] navigator is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		api:       deps.API,
		tokens:    deps.Tokens,
		validator: deps.Validator,
		navigator: deps.Navigator,
		transport: deps.Transport,
		state:     StateUninitialized,
		ctx:       ctx,
		cancel:    cancel,
	}
	if c.transport != nil {
		c.transport.SetAuthErrorHandler(c.HandleAuthError)
	}
	return c, nil
}

// Bootstrap validates stored tokens on startup and loads the identity. Any
// failure leaves the controller Unauthenticated; nothing is returned to the
// caller besides the resulting state. It only runs from Uninitialized or
// Unauthenticated, and not while a login is in progress.
func (c *Controller) Bootstrap(ctx context.Context) State {
	c.mu.Lock()
	if c.loggingIn || (c.state != StateUninitialized && c.state != StateUnauthenticated) {
		state := c.currentStateLocked()
		c.mu.Unlock()
		return state
	}
	c.state = StateValidating
	gen := c.generation
	c.mu.Unlock()

	if !c.validator.EnsureValid(ctx) {
		return c.finishBootstrap(gen, nil)
	}

	// A failure here is handled locally, not by the global auth handler.
	identity, err := c.api.Me(ctx, transport.SuppressAuthSignal())
	if err != nil {
		log.Warn().Err(err).Msg("identity check failed during startup")
		return c.finishBootstrap(gen, nil)
	}
	return c.finishBootstrap(gen, sessionFromIdentity(identity))
}

func (c *Controller) finishBootstrap(gen uint64, s *Session) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		// A login or logout happened meanwhile; its outcome stands.
		log.Debug().Msg("discarding stale startup validation result")
		return c.currentStateLocked()
	}
	if s == nil {
		c.clearTokens()
	} else {
		c.redirected.Store(false)
	}
	c.session = s
	c.state = stateFor(s)
	return c.currentStateLocked()
}

// Login signs in with credentials. Failures are returned for display on the
// login form and never trigger the lost-session redirect.
func (c *Controller) Login(ctx context.Context, username, password string) (*Session, error) {
	c.mu.Lock()
	if c.loggingIn {
		c.mu.Unlock()
		return nil, errors.Wrap(ierrors.ErrLoginInProgress, "[Controller.Login]")
	}
	c.loggingIn = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loggingIn = false
		c.mu.Unlock()
	}()

	resp, err := c.api.Login(ctx, username, password)
	if err != nil {
		c.mu.Lock()
		if c.session == nil {
			c.state = StateUnauthenticated
		}
		c.mu.Unlock()
		return nil, err
	}

	if err := c.tokens.StoreTokens(resp.Pair()); err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] store tokens")
	}

	s := sessionFromLogin(resp)
	c.mu.Lock()
	c.session = s
	c.state = stateFor(s)
	c.redirected.Store(false)
	out := s.clone()
	c.mu.Unlock()

	log.Info().Str("user_id", s.UserID.String()).Str("state", stateFor(s).String()).Msg("signed in")

	// Users without a holding have no capability data to load yet.
	if !s.NeedsHoldingSelect() {
		c.bg.Add(1)
		go c.refreshIdentity(gen, s.UserID)
	}
	return out, nil
}

// refreshIdentity replaces a provisional session with full identity data.
// Failure keeps the provisional session.
func (c *Controller) refreshIdentity(gen uint64, userID authrpc.ID) {
	defer c.bg.Done()

	identity, err := c.api.Me(c.ctx, transport.SuppressAuthSignal())
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("keeping provisional session, identity refresh failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.session == nil || c.session.UserID != userID {
		return
	}
	c.session = sessionFromIdentity(identity)
	c.state = stateFor(c.session)
}

// Logout ends the session. The backend call is best effort; local tokens and
// the session are always cleared.
func (c *Controller) Logout(ctx context.Context) error {
	if refreshToken := c.tokens.RefreshToken(); refreshToken != "" || c.tokens.AccessToken() != "" {
		if err := c.api.Logout(ctx, refreshToken); err != nil {
			log.Err(err).Msg("backend logout failed, clearing local session anyway")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.session = nil
	c.state = StateUnauthenticated
	if err := c.tokens.Clear(); err != nil {
		return errors.Wrap(err, "[Controller.Logout]")
	}
	return nil
}

// SwitchHolding scopes the session to holdingID. The new access token is
// stored before the identity is reloaded; if the reload fails the session
// keeps its previous capabilities with the new holding and the backend error
// is returned unchanged, even when it ended the session.
func (c *Controller) SwitchHolding(ctx context.Context, holdingID authrpc.ID) (*Session, error) {
	c.mu.RLock()
	signedIn := c.session != nil
	c.mu.RUnlock()
	if !signedIn {
		return nil, errors.Wrap(ierrors.ErrNotAuthenticated, "[Controller.SwitchHolding]")
	}

	resp, err := c.api.SwitchHolding(ctx, holdingID)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.StoreAccessToken(resp.AccessToken, resp.ExpiresAt.Time); err != nil {
		return nil, errors.Wrap(err, "[Controller.SwitchHolding] store access token")
	}

	identity, err := c.api.Me(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// session is nil when HandleAuthError cleared it for an auth failure.
		if c.session != nil {
			c.session.HoldingID = cloneID(&holdingID)
			c.session.Provisional = true
			c.state = stateFor(c.session)
		}
		return nil, err
	}
	if c.session == nil {
		return nil, errors.Wrap(ierrors.ErrNotAuthenticated, "[Controller.SwitchHolding] signed out during switch")
	}
	c.session = sessionFromIdentity(identity)
	c.state = stateFor(c.session)
	return c.session.clone(), nil
}

// HandleAuthError reacts to an auth failure reported by the transport. It is
// ignored while logging in or validating at startup, and acts only on the
// first signal until the next successful sign-in.
func (c *Controller) HandleAuthError(_ context.Context, apiErr *apierror.Error) {
	c.mu.RLock()
	suppressed := c.loggingIn || c.state == StateValidating
	c.mu.RUnlock()
	if suppressed {
		log.Debug().Str("code", apiErr.Code()).Msg("auth error during sign-in left to caller")
		return
	}
	if !c.redirected.CompareAndSwap(false, true) {
		return
	}

	log.Info().Str("code", apiErr.Code()).Str("endpoint", apiErr.Endpoint()).Msg("session lost, returning to login")

	c.mu.Lock()
	c.generation++
	c.session = nil
	c.state = StateUnauthenticated
	c.clearTokens()
	c.mu.Unlock()

	c.navigator.NavigateToLogin(apiErr.Code(), apiErr.DisplayMessage())
}

// SyncFromStorage drops the local session when another process has cleared or
// replaced the stored tokens.
func (c *Controller) SyncFromStorage() State {
	accessToken := c.tokens.AccessToken()
	storedUser := c.tokens.UserID()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return c.currentStateLocked()
	}
	if accessToken == "" || (storedUser != "" && storedUser != c.session.UserID.String()) {
		log.Info().Msg("stored tokens changed elsewhere, dropping session")
		c.generation++
		c.session = nil
		c.state = StateUnauthenticated
	}
	return c.currentStateLocked()
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentStateLocked()
}

// Snapshot returns the current state for display.
func (c *Controller) Snapshot() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := c.currentStateLocked()
	authenticated := c.session != nil
	return AuthState{
		State:              state,
		User:               c.session.clone(),
		IsAuthenticated:    authenticated,
		IsLoading:          state == StateUninitialized || state == StateValidating || state == StateLoggingIn,
		NeedsHoldingSelect: authenticated && c.session.NeedsHoldingSelect(),
	}
}

// Wait blocks until background identity refreshes finish.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// Close stops background work and detaches from the transport.
func (c *Controller) Close() {
	c.cancel()
	if c.transport != nil {
		c.transport.ClearAuthErrorHandler()
	}
	c.bg.Wait()
}

func (c *Controller) currentStateLocked() State {
	if c.loggingIn {
		return StateLoggingIn
	}
	return c.state
}

func (c *Controller) clearTokens() {
	if err := c.tokens.Clear(); err != nil {
		log.Err(err).Msg("clearing stored tokens")
	}
}
