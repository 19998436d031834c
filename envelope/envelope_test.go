package envelope_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/envelope"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    envelope.Kind
		payload string
	}{
		{"empty body", "", envelope.KindNull, "null"},
		{"null", "null", envelope.KindNull, "null"},
		{"success", `{"ok":true,"data":{"id":1},"meta":{"v":2}}`, envelope.KindSuccess, `{"id":1}`},
		{"success without data", `{"ok":true}`, envelope.KindSuccess, "null"},
		{"single row", `[{"id":7}]`, envelope.KindSingleRow, `{"id":7}`},
		{"empty rows", `[]`, envelope.KindRows, `[]`},
		{"many rows", `[{"id":1},{"id":2}]`, envelope.KindRows, `[{"id":1},{"id":2}]`},
		{"plain object", `{"name":"x"}`, envelope.KindUnknown, `{"name":"x"}`},
		{"scalar", `42`, envelope.KindUnknown, `42`},
		{"native code without details", `{"code":"23505","message":"dup"}`, envelope.KindUnknown, `{"code":"23505","message":"dup"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := envelope.Decode([]byte(tc.body))
			require.NoError(t, err)
			require.Equal(t, tc.kind, env.Kind)
			require.JSONEq(t, tc.payload, string(env.Payload))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("nested", func(t *testing.T) {
		env, err := envelope.Decode([]byte(`{"ok":false,"error":{"code":"auth.session_expired","message":"expired","message_key":"errors.auth.expired"},"trace_id":"t-1"}`))
		require.NoError(t, err)
		require.Equal(t, envelope.KindNestedError, env.Kind)
		require.Equal(t, "auth.session_expired", env.Error.Code)
		require.Equal(t, "errors.auth.expired", env.Error.MessageKey)
		require.Equal(t, "t-1", env.Error.TraceID)
	})

	t.Run("flat with ok false", func(t *testing.T) {
		env, err := envelope.Decode([]byte(`{"ok":false,"code":"holding.not_found","message":"missing"}`))
		require.NoError(t, err)
		require.Equal(t, envelope.KindFlatError, env.Kind)
		require.Equal(t, "holding.not_found", env.Error.Code)
	})

	t.Run("flat by namespaced code", func(t *testing.T) {
		env, err := envelope.Decode([]byte(`{"code":"device.invalid","message":"bad","fields":{"/name":"required"},"params":{"max":3}}`))
		require.NoError(t, err)
		require.Equal(t, envelope.KindFlatError, env.Kind)
		require.Equal(t, map[string]string{"/name": "required"}, env.Error.FieldErrors)
		require.Equal(t, map[string]any{"max": float64(3)}, env.Error.MessageParams)
	})

	t.Run("field errors as list", func(t *testing.T) {
		env, err := envelope.Decode([]byte(`{"code":"device.invalid","message":"bad","fieldErrors":[{"field":"/serial","message":"taken"}]}`))
		require.NoError(t, err)
		require.Equal(t, map[string]string{"/serial": "taken"}, env.Error.FieldErrors)
	})

	t.Run("native", func(t *testing.T) {
		env, err := envelope.Decode([]byte(`{"code":"23505","message":"duplicate key","details":"Key (serial)=(X) already exists.","hint":null}`))
		require.NoError(t, err)
		require.Equal(t, envelope.KindNativeError, env.Kind)
		require.Equal(t, "Key (serial)=(X) already exists.", env.Error.Details)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := envelope.Decode([]byte(`{"ok":`))
		require.Error(t, err)
	})
}

func TestIsDomainCode(t *testing.T) {
	require.True(t, envelope.IsDomainCode("auth.session_expired"))
	require.True(t, envelope.IsDomainCode("device.serial.taken"))
	require.False(t, envelope.IsDomainCode("23505"))
	require.False(t, envelope.IsDomainCode("PGRST301"))
	require.False(t, envelope.IsDomainCode("42P01"))
	require.False(t, envelope.IsDomainCode(""))
}

func TestNormalize(t *testing.T) {
	t.Run("unwraps success", func(t *testing.T) {
		data, err := envelope.Normalize([]byte(`{"ok":true,"data":[{"id":1},{"id":2}]}`), http.StatusOK, "rpc/list")
		require.NoError(t, err)
		require.JSONEq(t, `[{"id":1},{"id":2}]`, string(data))
	})

	t.Run("unwraps single row", func(t *testing.T) {
		data, err := envelope.Normalize([]byte(`[{"access_token":"a"}]`), http.StatusOK, "rpc/login")
		require.NoError(t, err)
		require.JSONEq(t, `{"access_token":"a"}`, string(data))
	})

	t.Run("passes rows through", func(t *testing.T) {
		data, err := envelope.Normalize([]byte(`[]`), http.StatusOK, "devices")
		require.NoError(t, err)
		require.JSONEq(t, `[]`, string(data))
	})

	t.Run("no content", func(t *testing.T) {
		data, err := envelope.Normalize(nil, http.StatusNoContent, "rpc/logout")
		require.NoError(t, err)
		require.Equal(t, "null", string(data))
	})

	t.Run("in-band auth error on 200", func(t *testing.T) {
		_, err := envelope.Normalize([]byte(`{"ok":false,"error":{"code":"auth.session_revoked","message":"Session revoked"}}`), http.StatusOK, "rpc/me")
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		require.Equal(t, apierror.KindDomain, apiErr.Kind())
		require.Equal(t, http.StatusOK, apiErr.HTTPStatus())
		require.True(t, apiErr.IsAuthError())
		require.Equal(t, "rpc/me", apiErr.Endpoint())
	})

	t.Run("native error on 200", func(t *testing.T) {
		_, err := envelope.Normalize([]byte(`{"code":"23503","message":"fk","details":"Key is not present"}`), http.StatusOK, "rpc/assign")
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		require.Equal(t, apierror.KindNativeDatabase, apiErr.Kind())
		require.Equal(t, "Invalid Reference", apiErr.Title())
		require.False(t, apiErr.IsAuthError())
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := envelope.Normalize([]byte(`<html>`), http.StatusOK, "devices")
		require.True(t, apierror.HasCode(err, envelope.CodeParse))
	})

	t.Run("non-2xx always errors", func(t *testing.T) {
		_, err := envelope.Normalize([]byte(`{"ok":true,"data":1}`), http.StatusInternalServerError, "rpc/x")
		require.True(t, apierror.HasCode(err, "HTTP_500"))
	})
}

func TestClassifyError(t *testing.T) {
	t.Run("postgrest expired token", func(t *testing.T) {
		apiErr := envelope.ClassifyError([]byte(`{"code":"PGRST303","message":"JWT expired","details":null,"hint":null}`), http.StatusUnauthorized, "devices")
		require.Equal(t, apierror.KindNativeDatabase, apiErr.Kind())
		require.Equal(t, "PGRST303", apiErr.Code())
		require.Equal(t, "Session Expired", apiErr.Title())
		require.True(t, apiErr.IsAuthError())
	})

	t.Run("generic exception with revocation message", func(t *testing.T) {
		apiErr := envelope.ClassifyError([]byte(`{"code":"P0001","message":"Session has been revoked"}`), http.StatusBadRequest, "rpc/me")
		require.Equal(t, "P0001", apiErr.Code())
		require.True(t, apiErr.IsAuthError())
	})

	t.Run("error object without ok flag", func(t *testing.T) {
		apiErr := envelope.ClassifyError([]byte(`{"error":{"code":"auth.token_missing","message":"no token"}}`), http.StatusForbidden, "rpc/me")
		require.Equal(t, apierror.KindDomain, apiErr.Kind())
		require.True(t, apiErr.IsAuthError())
	})

	t.Run("unrecognized body", func(t *testing.T) {
		apiErr := envelope.ClassifyError([]byte(`<html>bad gateway</html>`), http.StatusBadGateway, "devices")
		require.Equal(t, apierror.KindHTTP, apiErr.Kind())
		require.Equal(t, "HTTP_502", apiErr.Code())
		require.Equal(t, "devices failed with status 502", apiErr.Message())
		require.Equal(t, "Request Failed", apiErr.Title())
		require.False(t, apiErr.IsAuthError())
	})

	t.Run("bare 401", func(t *testing.T) {
		apiErr := envelope.ClassifyError(nil, http.StatusUnauthorized, "devices")
		require.Equal(t, "HTTP_401", apiErr.Code())
		require.True(t, apiErr.IsAuthError())
	})

	t.Run("message field only", func(t *testing.T) {
		apiErr := envelope.ClassifyError([]byte(`{"message":"rate limited"}`), http.StatusTooManyRequests, "devices")
		require.Equal(t, "HTTP_429", apiErr.Code())
		require.Equal(t, "rate limited", apiErr.Message())
	})
}

func TestNormalizeIsDeterministic(t *testing.T) {
	body := []byte(`{"ok":true,"data":{"a":[1,2,3]}}`)
	first, err := envelope.Normalize(body, http.StatusOK, "x")
	require.NoError(t, err)
	for range 5 {
		next, err := envelope.Normalize(body, http.StatusOK, "x")
		require.NoError(t, err)
		require.Equal(t, json.RawMessage(first), next)
	}
}
