package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/authcheck"
	"github.com/rs/zerolog/log"
)

// Error codes synthesized on the client side.
const (
	CodeParse   = "transport.parse"
	CodeNetwork = "transport.network"
)

// Normalize turns a response into the caller's payload or an *apierror.Error.
//
// For 2xx responses the v2 success envelope is unwrapped to its data, a
// single-element array is unwrapped to its element and other arrays, objects and
// scalars pass through. An error envelope on a 2xx status is still an error.
// Non-2xx responses always return an error, see ClassifyError.
func Normalize(body []byte, status int, endpoint string) (json.RawMessage, error) {
	if !isSuccess(status) {
		return nil, ClassifyError(body, status, endpoint)
	}

	env, err := decode(body, false)
	if err != nil {
		return nil, ParseError(endpoint, status, err)
	}

	switch env.Kind {
	case KindNestedError, KindFlatError, KindNativeError:
		return nil, fromBody(env, status, endpoint)
	case KindUnknown:
		log.Debug().Str("endpoint", endpoint).Int("status", status).Msg("unrecognized response shape, passing through")
		return env.Payload, nil
	default:
		return env.Payload, nil
	}
}

// ClassifyError builds the error for a non-2xx response. Bodies that match no
// known error shape become a generic HTTP_<status> error.
func ClassifyError(body []byte, status int, endpoint string) *apierror.Error {
	env, err := decode(body, true)
	if err == nil && env.Kind.IsError() {
		return fromBody(env, status, endpoint)
	}
	return HTTPError(status, endpoint, extractMessage(body))
}

// HTTPError synthesizes an error from the status code alone.
func HTTPError(status int, endpoint, message string) *apierror.Error {
	code := fmt.Sprintf("HTTP_%d", status)
	if message == "" {
		message = fmt.Sprintf("%s failed with status %d", endpoint, status)
	}
	return apierror.New(apierror.Fields{
		Kind:       apierror.KindHTTP,
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Endpoint:   endpoint,
		AuthError:  authcheck.IsAuthError(code, message, status),
	})
}

// ParseError reports a body that was not valid JSON.
func ParseError(endpoint string, status int, cause error) *apierror.Error {
	return apierror.New(apierror.Fields{
		Kind:       apierror.KindTransport,
		Code:       CodeParse,
		Message:    "response body is not valid JSON",
		HTTPStatus: status,
		Endpoint:   endpoint,
		Cause:      cause,
	})
}

// NetworkError reports a request that never produced a response.
func NetworkError(endpoint string, cause error) *apierror.Error {
	return apierror.New(apierror.Fields{
		Kind:     apierror.KindTransport,
		Code:     CodeNetwork,
		Message:  "network request failed",
		Endpoint: endpoint,
		Cause:    cause,
	})
}

func fromBody(env Envelope, status int, endpoint string) *apierror.Error {
	body := env.Error
	kind := apierror.KindDomain
	if env.Kind == KindNativeError {
		kind = apierror.KindNativeDatabase
	}
	if body.Code == "" {
		body.Code = fmt.Sprintf("HTTP_%d", status)
		kind = apierror.KindHTTP
	}
	return apierror.New(apierror.Fields{
		Kind:          kind,
		Code:          body.Code,
		Message:       body.Message,
		MessageKey:    body.MessageKey,
		MessageParams: body.MessageParams,
		FieldErrors:   body.FieldErrors,
		TraceID:       body.TraceID,
		HTTPStatus:    status,
		Details:       body.Details,
		Hint:          body.Hint,
		Endpoint:      endpoint,
		AuthError:     authcheck.IsAuthError(body.Code, body.Message, status),
	})
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
