package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-client/envelope"
)

// Get fetches path and decodes the normalized payload into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodGet, path, nil, opts)
}

func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPost, path, body, opts)
}

func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodPatch, path, body, opts)
}

func Delete[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return call[T](ctx, c, http.MethodDelete, path, body, opts)
}

// RPC calls a backend function by name with params as its JSON arguments.
func RPC[T any](ctx context.Context, c *Client, name string, params any, opts ...RequestOption) (T, error) {
	if params == nil {
		params = struct{}{}
	}
	return call[T](ctx, c, http.MethodPost, c.RPCPath(name), params, opts)
}

func call[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (T, error) {
	var out T
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return out, err
	}
	if err := decodeInto(resp, path, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeInto(resp *Response, path string, out any) error {
	data := bytes.TrimSpace(resp.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return envelope.ParseError(strings.TrimPrefix(path, "/"), resp.Status, err)
	}
	return nil
}
