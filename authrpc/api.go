// Package authrpc wraps the backend's authentication RPC functions.
package authrpc

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-admin-client/token"
	"github.com/jrsteele09/go-admin-client/token/refresh"
	"github.com/jrsteele09/go-admin-client/transport"
	"github.com/pkg/errors"
)

// RPC function names.
const (
	FuncLogin         = "login"
	FuncRefresh       = "refresh_token"
	FuncLogout        = "logout"
	FuncMe            = "me"
	FuncSwitchHolding = "switch_holding"
)

type loginParams struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	UserAgent string `json:"user_agent,omitempty"`
}

type refreshParams struct {
	RefreshToken string `json:"refresh_token"`
	UserAgent    string `json:"user_agent,omitempty"`
}

type logoutParams struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type switchHoldingParams struct {
	HoldingID ID `json:"holding_id"`
}

// API calls the auth functions through a transport.Client.
type API struct {
	client    *transport.Client
	userAgent string
}

func New(client *transport.Client, userAgent string) *API {
	return &API{client: client, userAgent: userAgent}
}

// Login authenticates with a username and password. It sends no bearer token.
func (a *API) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	resp, err := transport.RPC[TokenResponse](ctx, a.client, FuncLogin, loginParams{
		Username:  username,
		Password:  password,
		UserAgent: a.userAgent,
	}, transport.NoAuth())
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("[API.Login] response carried no access token")
	}
	return &resp, nil
}

// Refresh exchanges a refresh token. The current access token may already be
// invalid, so none is sent, and failures are left to the caller.
func (a *API) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := transport.RPC[TokenResponse](ctx, a.client, FuncRefresh, refreshParams{
		RefreshToken: refreshToken,
		UserAgent:    a.userAgent,
	}, transport.NoAuth(), transport.SuppressAuthSignal())
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("[API.Refresh] response carried no access token")
	}
	return &resp, nil
}

// Logout revokes the session on the backend.
func (a *API) Logout(ctx context.Context, refreshToken string) error {
	_, err := transport.RPC[json.RawMessage](ctx, a.client, FuncLogout, logoutParams{
		RefreshToken: refreshToken,
	}, transport.SuppressAuthSignal())
	return err
}

// Me fetches the current identity.
func (a *API) Me(ctx context.Context, opts ...transport.RequestOption) (*Identity, error) {
	identity, err := transport.RPC[Identity](ctx, a.client, FuncMe, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// SwitchHolding scopes the session to another holding.
func (a *API) SwitchHolding(ctx context.Context, holdingID ID) (*SwitchHoldingResponse, error) {
	resp, err := transport.RPC[SwitchHoldingResponse](ctx, a.client, FuncSwitchHolding, switchHoldingParams{
		HoldingID: holdingID,
	})
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.New("[API.SwitchHolding] response carried no access token")
	}
	return &resp, nil
}

// TokenRefresher adapts Refresh for the refresh scheduler.
func (a *API) TokenRefresher() refresh.Refresher {
	return refresh.RefresherFunc(func(ctx context.Context, refreshToken string) (token.Pair, error) {
		resp, err := a.Refresh(ctx, refreshToken)
		if err != nil {
			return token.Pair{}, err
		}
		return resp.Pair(), nil
	})
}
