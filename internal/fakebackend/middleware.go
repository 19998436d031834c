package fakebackend

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const contextKeyClaims contextKey = "claims"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the common chain for every route, followed by mw.
func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
	}
	return append(chained, mw...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-Id")).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("fakebackend request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("handler panicked")
				writeNativeError(w, http.StatusInternalServerError, "XX000", "internal error", "", "")
			}
		}()
		next(w, r)
	}
}

// Instrument counts calls to route and serves any injected failure.
func (s *Server) Instrument(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if failure, ok := s.recordCall(route); ok {
				w.Header().Set("Content-Type", contentTypeJSON)
				w.WriteHeader(failure.status)
				_, _ = w.Write([]byte(failure.body))
				return
			}
			next(w, r)
		}
	}
}

// RequireAuth validates the bearer JWT the way PostgREST does and answers with
// its native error objects.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeNativeError(w, http.StatusUnauthorized, "PGRST302", "Anonymous access is disabled", "", "")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeNativeError(w, http.StatusUnauthorized, "PGRST301", "Expected a Bearer token", "", "")
				return
			}

			claims, err := s.parseAccessToken(parts[1])
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeNativeError(w, http.StatusUnauthorized, "PGRST303", "JWT expired", "", "")
				return
			}
			if err != nil {
				writeNativeError(w, http.StatusUnauthorized, "PGRST301", "JWSError JWSInvalidSignature", err.Error(), "")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func claimsFrom(ctx context.Context) *accessClaims {
	claims, _ := ctx.Value(contextKeyClaims).(*accessClaims)
	return claims
}
