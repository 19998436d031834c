package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-admin-client/internal/config"
	"github.com/jrsteele09/go-admin-client/internal/fakebackend"
	"github.com/jrsteele09/go-admin-client/internal/logging"
	"github.com/jrsteele09/go-admin-client/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	demoUserID  = 1
	demoHolding = 100
	demoDevices = 45
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("fake backend stopped with error, restarting")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("fake backend stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.NewFromFile(config.GetEnv("ADMIN_CONFIG", ""))
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, c.GetLogLevel())
	displayAppname("Fake Backend")

	backend, err := newBackend()
	if err != nil {
		return err
	}
	backend.LogRoutes()

	server := &http.Server{Addr: c.GetFakeBackendAddr(), Handler: backend, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(server) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

// newBackend seeds a demo account that can switch between two holdings.
func newBackend() (*fakebackend.Server, error) {
	backend := fakebackend.New(fakebackend.WithDevices(demoDevices))
	username := config.GetEnv("ADMIN_FAKE_USER", "admin")
	password := config.GetEnv("ADMIN_FAKE_PASSWORD", "admin")
	err := backend.AddUser(fakebackend.User{
		ID:           demoUserID,
		Username:     username,
		RoleCode:     "holding_admin",
		HoldingID:    utils.Ptr[int64](demoHolding),
		Holdings:     []int64{demoHolding + 1},
		Capabilities: []string{"devices.read", "devices.write", "contracts.read"},
	}, password)
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", username).Msg("demo user seeded")
	return backend, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("fake backend listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
