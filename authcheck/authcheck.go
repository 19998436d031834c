// Package authcheck decides whether a backend error means the session is gone.
package authcheck

import (
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/go-admin-client/internal/utils"
)

// authCodes are token-lifecycle codes from PostgREST and the v2 auth namespace.
var authCodes = utils.ToStringSet([]string{
	"PGRST301", // JWT invalid or undecodable
	"PGRST302", // anonymous access disabled, token missing
	"PGRST303", // JWT claims validation failed (expired)
	"PGRST116",
	"auth.session_expired",
	"auth.session_revoked",
	"auth.token_expired",
	"auth.token_invalid",
	"auth.token_missing",
	"auth.unauthenticated",
})

// revocationPhrases catch backends that raise a generic exception code but put
// the real reason in the message. Matched case-insensitively.
var revocationPhrases = []string{
	"session revoked",
	"session has been revoked",
	"session expired",
	"session not found",
	"invalid session",
	"jwt expired",
	"token expired",
}

// IsAuthError reports whether an error requires session teardown. httpStatus may be
// zero when unknown.
func IsAuthError(code, message string, httpStatus int) bool {
	if _, ok := authCodes[code]; ok {
		return true
	}
	if httpStatus == http.StatusUnauthorized {
		return true
	}
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, phrase := range revocationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// AuthCodes returns the fixed set of auth codes, sorted.
func AuthCodes() []string {
	codes := make([]string, 0, len(authCodes))
	for code := range authCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// RevocationPhrases returns the message substrings treated as auth failures.
func RevocationPhrases() []string {
	return slices.Clone(revocationPhrases)
}
