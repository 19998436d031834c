package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jrsteele09/go-admin-client/authrpc"
	"github.com/jrsteele09/go-admin-client/internal/config"
	ierrors "github.com/jrsteele09/go-admin-client/internal/errors"
	"github.com/jrsteele09/go-admin-client/session"
	"github.com/jrsteele09/go-admin-client/token"
	"github.com/jrsteele09/go-admin-client/token/filestore"
	"github.com/jrsteele09/go-admin-client/token/memstore"
	"github.com/jrsteele09/go-admin-client/token/redisstore"
	"github.com/jrsteele09/go-admin-client/token/refresh"
	"github.com/jrsteele09/go-admin-client/transport"
	"github.com/pkg/errors"
)

// app is the client stack for one command invocation.
type app struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer

	storage    token.Storage
	closeStore func() error
	tokens     *token.Store
	client     *transport.Client
	api        *authrpc.API
	scheduler  *refresh.Scheduler
	controller *session.Controller
}

func newApp(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*app, error) {
	storage, closeStore, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		stdout:     stdout,
		stderr:     stderr,
		storage:    storage,
		closeStore: closeStore,
	}
	a.tokens = token.NewStore(storage, token.WithLeadWindow(cfg.GetRefreshLeadWindow()))
	a.client = transport.New(cfg.GetAPIURL(), a.tokens,
		transport.WithRPCPrefix(cfg.GetRPCPrefix()),
		transport.WithUserAgent(cfg.GetUserAgent()),
	)
	a.api = authrpc.New(a.client, cfg.GetUserAgent())
	a.scheduler = refresh.NewScheduler(a.tokens, a.api.TokenRefresher())

	a.controller, err = session.NewController(session.Deps{
		API:       a.api,
		Tokens:    a.tokens,
		Validator: a.scheduler,
		Navigator: session.LoginRedirect(cfg.GetLoginURL(), func(target string) {
			fmt.Fprintf(stderr, "session ended, sign in again: %s\n", target)
		}),
		Transport: a.client,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	a.controller.Close()
	if err := a.closeStore(); err != nil {
		fmt.Fprintf(a.stderr, "closing token storage: %v\n", err)
	}
}

// newStorage opens the configured token backend. Token files and redis keys
// are scoped to the API origin.
func newStorage(ctx context.Context, cfg config.Config) (token.Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.GetTokenStorage() {
	case config.StorageMemory:
		return memstore.New(), noop, nil
	case config.StorageFile:
		store, err := filestore.New(cfg.GetTokenDir(), cfg.GetAPIURL())
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.StorageRedis:
		client, err := redisstore.Connect(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, cfg.GetAPIURL()), client.Close, nil
	default:
		return nil, nil, errors.Wrapf(ierrors.ErrUnknownStorage, "[newStorage] %q", cfg.GetTokenStorage())
	}
}
