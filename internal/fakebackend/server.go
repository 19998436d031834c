// Package fakebackend is an in-memory stand-in for the PostgREST admin backend.
// It serves the auth RPC functions and a paginated devices view, with hooks
// for tests to count calls, inject failures and revoke sessions.
package fakebackend

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultSigningKey = "fakebackend-dev-signing-key"
)

// Route names used by the call counters and failure hooks.
const (
	RouteLogin         = "login"
	RouteRefresh       = "refresh_token"
	RouteLogout        = "logout"
	RouteMe            = "me"
	RouteSwitchHolding = "switch_holding"
	RouteDevices       = "devices"
)

type Server struct {
	mux    *http.ServeMux
	routes []string

	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFunc    func() time.Time

	users    *userRepo
	sessions *sessionRepo
	devices  *deviceRepo

	hookLock sync.Mutex
	calls    map[string]int
	failures map[string][]injectedFailure
}

type injectedFailure struct {
	status int
	body   string
}

type Option func(*Server)

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithSigningKey(key string) Option {
	return func(s *Server) {
		s.signingKey = []byte(key)
	}
}

// WithDevices seeds n devices with serials SN0001, SN0002 and so on.
func WithDevices(n int) Option {
	return func(s *Server) {
		s.devices.seed(n)
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		signingKey: []byte(defaultSigningKey),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		nowFunc:    time.Now,
		users:      newUserRepo(),
		sessions:   newSessionRepo(),
		devices:    newDeviceRepo(),
		calls:      make(map[string]int),
		failures:   make(map[string][]injectedFailure),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// LogRoutes writes the route table at debug level.
func (s *Server) LogRoutes() {
	routes := s.Routes()
	sort.Strings(routes)
	for _, route := range routes {
		log.Debug().Str("route", route).Msg("registered")
	}
}

// Calls reports how many requests reached the named route.
func (s *Server) Calls(route string) int {
	s.hookLock.Lock()
	defer s.hookLock.Unlock()
	return s.calls[route]
}

// FailNext makes the next request to route answer with status and body
// instead of running the handler. Calls queue up.
func (s *Server) FailNext(route string, status int, body string) {
	s.hookLock.Lock()
	defer s.hookLock.Unlock()
	s.failures[route] = append(s.failures[route], injectedFailure{status: status, body: body})
}

// RevokeUserSessions marks every session of userID revoked. Access tokens stay
// cryptographically valid but the backend rejects them in-band.
func (s *Server) RevokeUserSessions(userID int64) int {
	return s.sessions.revokeUser(userID)
}

func (s *Server) recordCall(route string) (injectedFailure, bool) {
	s.hookLock.Lock()
	defer s.hookLock.Unlock()
	s.calls[route]++
	queue := s.failures[route]
	if len(queue) == 0 {
		return injectedFailure{}, false
	}
	s.failures[route] = queue[1:]
	return queue[0], true
}
