package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/go-admin-client/authrpc"
	ierrors "github.com/jrsteele09/go-admin-client/internal/errors"
	"github.com/jrsteele09/go-admin-client/session"
	"github.com/jrsteele09/go-admin-client/token/filestore"
	"github.com/jrsteele09/go-admin-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {summary: "sign in and store the token pair", run: loginCmd},
	"whoami":         {summary: "validate stored tokens and show the session", run: whoamiCmd},
	"logout":         {summary: "revoke the session and clear stored tokens", run: logoutCmd},
	"status":         {summary: "show stored token state without calling the backend", run: statusCmd},
	"get":            {summary: "GET a resource, optionally one page at a time", run: getCmd},
	"rpc":            {summary: "call a backend function with JSON params", run: rpcCmd},
	"switch-holding": {summary: "scope the session to another holding", run: switchHoldingCmd},
	"watch":          {summary: "keep tokens fresh and follow changes from other processes", run: watchCmd},
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (defaults to $ADMIN_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if *username == "" || *password == "" {
		return errors.New("login requires -u and -p (or ADMIN_PASSWORD)")
	}

	if _, err := a.controller.Login(ctx, *username, *password); err != nil {
		return err
	}
	a.controller.Wait()
	return a.printJSON(a.controller.Snapshot())
}

func whoamiCmd(ctx context.Context, a *app, _ []string) error {
	if state := a.controller.Bootstrap(ctx); state != session.StateAuthenticated && state != session.StateHoldingSelectionRequired {
		return errors.Wrap(ierrors.ErrNotAuthenticated, "whoami")
	}
	return a.printJSON(a.controller.Snapshot())
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	if err := a.controller.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "signed out")
	return nil
}

type tokenStatus struct {
	UserID             string     `json:"user_id,omitempty"`
	HasAccessToken     bool       `json:"has_access_token"`
	AccessExpiresAt    *time.Time `json:"access_expires_at,omitempty"`
	AccessExpired      bool       `json:"access_expired"`
	ShouldRefresh      bool       `json:"should_refresh"`
	HasRefreshToken    bool       `json:"has_refresh_token"`
	RefreshExpiresAt   *time.Time `json:"refresh_expires_at,omitempty"`
	RefreshExpired     bool       `json:"refresh_expired"`
	OAuth2TokenIsValid bool       `json:"oauth2_token_valid"`
}

func statusCmd(_ context.Context, a *app, _ []string) error {
	status := tokenStatus{
		UserID:          a.tokens.UserID(),
		HasAccessToken:  a.tokens.AccessToken() != "",
		AccessExpired:   a.tokens.IsTokenExpired(),
		ShouldRefresh:   a.tokens.ShouldRefreshToken(),
		HasRefreshToken: a.tokens.RefreshToken() != "",
		RefreshExpired:  a.tokens.IsRefreshTokenExpired(),
	}
	if t, ok := a.tokens.ExpiresAt(); ok {
		status.AccessExpiresAt = &t
	}
	if t, ok := a.tokens.RefreshExpiresAt(); ok {
		status.RefreshExpiresAt = &t
	}
	if pair, ok := a.tokens.Pair(); ok {
		status.OAuth2TokenIsValid = pair.OAuth2Token().Valid()
	}
	return a.printJSON(status)
}

type pageOutput struct {
	Data       []json.RawMessage `json:"data"`
	TotalCount int               `json:"total_count"`
}

func getCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	page := fs.Int("page", 0, "1-based page number; 0 fetches without a range")
	size := fs.Int("size", 20, "rows per page")
	noAuth := fs.Bool("no-auth", false, "send no bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("get requires exactly one path")
	}

	opts, err := a.authOptions(ctx, *noAuth)
	if err != nil {
		return err
	}
	path := fs.Arg(0)
	if *page > 0 {
		result, err := transport.GetPaginated[json.RawMessage](ctx, a.client, path, transport.Page{Number: *page, Size: *size}, opts...)
		if err != nil {
			return err
		}
		return a.printJSON(pageOutput{Data: result.Data, TotalCount: result.TotalCount})
	}

	data, err := transport.Get[json.RawMessage](ctx, a.client, path, opts...)
	if err != nil {
		return err
	}
	return a.printJSON(data)
}

func rpcCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rpc", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	noAuth := fs.Bool("no-auth", false, "send no bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return errors.New("rpc requires a function name and optional JSON params")
	}

	var params any
	if fs.NArg() == 2 {
		raw := json.RawMessage(fs.Arg(1))
		if !json.Valid(raw) {
			return errors.Errorf("params are not valid JSON: %s", fs.Arg(1))
		}
		params = raw
	}

	opts, err := a.authOptions(ctx, *noAuth)
	if err != nil {
		return err
	}
	data, err := transport.RPC[json.RawMessage](ctx, a.client, fs.Arg(0), params, opts...)
	if err != nil {
		return err
	}
	return a.printJSON(data)
}

func switchHoldingCmd(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("switch-holding requires a holding id")
	}
	if state := a.controller.Bootstrap(ctx); state == session.StateUnauthenticated {
		return errors.Wrap(ierrors.ErrNotAuthenticated, "switch-holding")
	}
	if _, err := a.controller.SwitchHolding(ctx, authrpc.ID(args[0])); err != nil {
		return err
	}
	return a.printJSON(a.controller.Snapshot())
}

// watchCmd runs until interrupted. With file storage, logins and logouts from
// other adminctl processes are picked up as they happen.
func watchCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	interval := fs.Duration("interval", a.cfg.GetRefreshCheckInterval(), "how often to check token validity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state := a.controller.Bootstrap(ctx)
	log.Info().Stringer("state", state).Msg("watching session")

	if store, ok := a.storage.(*filestore.Store); ok {
		go func() {
			err := store.Watch(ctx, func() {
				after := a.controller.SyncFromStorage()
				if after == session.StateUnauthenticated && a.tokens.AccessToken() != "" {
					after = a.controller.Bootstrap(ctx)
				}
				log.Info().Str("path", store.Path()).Stringer("state", after).Msg("token file changed")
			})
			if err != nil {
				log.Err(err).Msg("token file watch stopped")
			}
		}()
	}

	a.scheduler.Run(ctx, *interval)
	return nil
}

// authOptions makes sure the stored access token is usable before an
// authenticated call.
func (a *app) authOptions(ctx context.Context, noAuth bool) ([]transport.RequestOption, error) {
	if noAuth {
		return []transport.RequestOption{transport.NoAuth()}, nil
	}
	if !a.scheduler.EnsureValid(ctx) {
		return nil, errors.Wrap(ierrors.ErrNotAuthenticated, "sign in with adminctl login")
	}
	return nil, nil
}

func (a *app) printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[printJSON]")
	}
	fmt.Fprintln(a.stdout, string(out))
	return nil
}
