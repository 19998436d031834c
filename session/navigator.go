package session

import (
	"net/url"

	"github.com/rs/zerolog/log"
)

// Navigator sends the user back to the login screen after the session is lost.
type Navigator interface {
	NavigateToLogin(code, message string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(code, message string)

func (f NavigatorFunc) NavigateToLogin(code, message string) {
	f(code, message)
}

// LoginRedirect returns a Navigator that builds the login URL with the error
// code and message as query parameters and hands it to navigate.
func LoginRedirect(loginURL string, navigate func(target string)) Navigator {
	return NavigatorFunc(func(code, message string) {
		navigate(LoginURL(loginURL, code, message))
	})
}

// LoginURL appends error_code and error_message to loginURL.
func LoginURL(loginURL, code, message string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		log.Err(err).Str("login_url", loginURL).Msg("invalid login URL")
		u = &url.URL{Path: "/login"}
	}
	q := u.Query()
	if code != "" {
		q.Set("error_code", code)
	}
	if message != "" {
		q.Set("error_message", message)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
