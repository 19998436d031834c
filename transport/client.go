// Package transport issues REST and RPC calls against the PostgREST backend and
// turns every response into either a decoded value or an *apierror.Error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/envelope"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerUserAgent     = "User-Agent"
	headerRequestID     = "X-Request-Id"
	contentTypeJSON     = "application/json"
	defaultRPCPrefix    = "/rpc"
)

// AccessTokenSource supplies the bearer token for authenticated requests. An
// empty string means no token is available.
type AccessTokenSource interface {
	AccessToken() string
}

// AuthErrorHandler is told about authentication failures. It runs before the
// failing call returns its error.
type AuthErrorHandler func(ctx context.Context, err *apierror.Error)

// Response is a successful, normalized response.
type Response struct {
	Status int
	Header http.Header
	Data   json.RawMessage
}

// Client talks to one backend origin.
type Client struct {
	baseURL    string
	rpcPrefix  string
	userAgent  string
	httpClient *http.Client
	tokens     AccessTokenSource

	handlerMu   sync.RWMutex
	authHandler AuthErrorHandler
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRPCPrefix sets the path RPC functions live under. Defaults to "/rpc".
func WithRPCPrefix(prefix string) Option {
	return func(c *Client) {
		c.rpcPrefix = "/" + strings.Trim(prefix, "/")
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a Client for baseURL. tokens may be nil for an unauthenticated client.
func New(baseURL string, tokens AccessTokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		rpcPrefix:  defaultRPCPrefix,
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the origin the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RPCPath returns the request path for the named RPC function.
func (c *Client) RPCPath(name string) string {
	return c.rpcPrefix + "/" + strings.TrimPrefix(name, "/")
}

// SetAuthErrorHandler installs the process-wide auth failure handler, replacing
// any previous one.
func (c *Client) SetAuthErrorHandler(h AuthErrorHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.authHandler = h
}

func (c *Client) ClearAuthErrorHandler() {
	c.SetAuthErrorHandler(nil)
}

func (c *Client) handler() AuthErrorHandler {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return c.authHandler
}

// Do sends one request. body is JSON encoded when non-nil. A non-2xx status, an
// error envelope on any status, an unreadable body or a network failure all
// return an *apierror.Error.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	ro := buildRequestOptions(opts)
	endpoint := strings.TrimPrefix(path, "/")
	requestID := uuid.NewString()

	req, err := c.newRequest(ctx, method, path, body, requestID, ro)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("method", method).Str("endpoint", endpoint).Str("request_id", requestID).Msg("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, envelope.NetworkError(endpoint, err).WithTraceID(requestID)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, envelope.NetworkError(endpoint, err).WithTraceID(requestID)
	}

	data, err := envelope.Normalize(raw, resp.StatusCode, endpoint)
	if err != nil {
		apiErr, ok := apierror.As(err)
		if !ok {
			return nil, errors.Wrap(err, "[Client.Do] normalize response")
		}
		return nil, c.fail(ctx, apiErr.WithTraceID(requestID), ro)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Data: data}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, requestID string, ro requestOptions) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(ro.query) > 0 {
		target += "?" + ro.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "[Client.newRequest] encode body for %s", path)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.newRequest] build %s %s", method, path)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeJSON)
	req.Header.Set(headerRequestID, requestID)
	if c.userAgent != "" {
		req.Header.Set(headerUserAgent, c.userAgent)
	}
	if ro.auth && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set(headerAuthorization, "Bearer "+token)
		}
	}
	for key, values := range ro.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// fail signals the auth handler when the error is an auth failure the caller
// did not ask to handle itself.
func (c *Client) fail(ctx context.Context, apiErr *apierror.Error, ro requestOptions) error {
	if !apiErr.IsAuthError() {
		return apiErr
	}
	if ro.suppressAuthSignal {
		log.Debug().Str("endpoint", apiErr.Endpoint()).Str("code", apiErr.Code()).Msg("auth error left to caller")
		return apiErr
	}
	if h := c.handler(); h != nil {
		log.Info().Str("endpoint", apiErr.Endpoint()).Str("code", apiErr.Code()).Msg("signalling auth error")
		h(ctx, apiErr)
	}
	return apiErr
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
