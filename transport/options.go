package transport

import (
	"net/http"
	"net/url"
)

type requestOptions struct {
	auth               bool
	suppressAuthSignal bool
	query              url.Values
	header             http.Header
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

func buildRequestOptions(opts []RequestOption) requestOptions {
	ro := requestOptions{auth: true, header: http.Header{}}
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// NoAuth sends the request without a bearer token.
func NoAuth() RequestOption {
	return func(ro *requestOptions) {
		ro.auth = false
	}
}

// SuppressAuthSignal keeps an auth failure on this request away from the
// registered AuthErrorHandler. The caller still receives the error.
func SuppressAuthSignal() RequestOption {
	return func(ro *requestOptions) {
		ro.suppressAuthSignal = true
	}
}

// WithQuery adds query parameters, e.g. PostgREST filters like "status=eq.active".
func WithQuery(q url.Values) RequestOption {
	return func(ro *requestOptions) {
		if ro.query == nil {
			ro.query = cloneQuery(q)
			return
		}
		for k, v := range q {
			ro.query[k] = append(ro.query[k], v...)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(ro *requestOptions) {
		ro.header.Add(key, value)
	}
}
