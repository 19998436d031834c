// Package envelope classifies and unwraps PostgREST response bodies.
//
// The backend has used several response shapes over time. They form a closed set,
// decoded here and nowhere else:
//
//	{ok:false, error:{code,message,...}}   nested error
//	{ok:false, code, message}              flat v2 error
//	{code:"x.y", message}                  flat v2 error (namespaced code)
//	{code, message, details, hint}         native database error
//	{ok:true, data, meta?}                 v2 success
//	[row]                                  legacy single-row RPC result
//	[], [row, row, ...]                    table or view rows
package envelope

import (
	"bytes"
	"encoding/json"
	"regexp"
)

// Kind is the recognized shape of a response body.
type Kind int

const (
	KindNull Kind = iota
	KindNestedError
	KindFlatError
	KindNativeError
	KindSuccess
	KindSingleRow
	KindRows
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNull:        "null",
	KindNestedError: "nested_error",
	KindFlatError:   "flat_error",
	KindNativeError: "native_error",
	KindSuccess:     "success",
	KindSingleRow:   "single_row",
	KindRows:        "rows",
	KindUnknown:     "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// IsError reports whether the kind carries an error body.
func (k Kind) IsError() bool {
	return k == KindNestedError || k == KindFlatError || k == KindNativeError
}

// Envelope is a decoded response body. Payload is set for the non-error kinds,
// Error for the error kinds.
type Envelope struct {
	Kind    Kind
	Payload json.RawMessage
	Meta    json.RawMessage
	Error   *ErrorBody
}

// ErrorBody is the union of the fields any error shape may carry.
type ErrorBody struct {
	Code          string
	Message       string
	MessageKey    string
	MessageParams map[string]any
	FieldErrors   map[string]string
	TraceID       string
	Details       string
	Hint          string
}

var null = json.RawMessage("null")

// domainCode matches namespaced codes such as "auth.session_expired". Native
// database and PostgREST codes ("23505", "42P01", "PGRST301") never contain a dot.
var domainCode = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+)+$`)

// IsDomainCode reports whether code belongs to the v2 namespaced error family.
func IsDomainCode(code string) bool {
	return domainCode.MatchString(code)
}

// Decode classifies a 2xx response body. body must be valid JSON or empty.
func Decode(body []byte) (Envelope, error) {
	return decode(body, false)
}

func decode(body []byte, errorStatus bool) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, null) {
		return Envelope{Kind: KindNull, Payload: null}, nil
	}

	switch trimmed[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return Envelope{}, err
		}
		if len(rows) == 1 {
			return Envelope{Kind: KindSingleRow, Payload: rows[0]}, nil
		}
		return Envelope{Kind: KindRows, Payload: json.RawMessage(trimmed)}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Envelope{}, err
		}
		return decodeObject(obj, json.RawMessage(trimmed), errorStatus), nil
	default:
		var scalar any
		if err := json.Unmarshal(trimmed, &scalar); err != nil {
			return Envelope{}, err
		}
		return Envelope{Kind: KindUnknown, Payload: json.RawMessage(trimmed)}, nil
	}
}

func decodeObject(obj map[string]json.RawMessage, raw json.RawMessage, errorStatus bool) Envelope {
	ok, hasOK := boolField(obj, "ok")

	if hasOK && !ok {
		if nested, isObj := objectField(obj, "error"); isObj {
			body := parseErrorBody(nested)
			if body.TraceID == "" {
				body.TraceID = stringField(obj, "trace_id", "traceId")
			}
			return Envelope{Kind: KindNestedError, Error: body, Meta: obj["meta"]}
		}
		return Envelope{Kind: KindFlatError, Error: parseErrorBody(obj), Meta: obj["meta"]}
	}

	if hasOK && ok {
		data, present := obj["data"]
		if !present {
			data = null
		}
		return Envelope{Kind: KindSuccess, Payload: data, Meta: obj["meta"]}
	}

	// Error responses sometimes drop the ok flag and only send {error:{...}}.
	if errorStatus {
		if nested, isObj := objectField(obj, "error"); isObj && stringField(nested, "code") != "" {
			return Envelope{Kind: KindNestedError, Error: parseErrorBody(nested)}
		}
	}

	code := stringField(obj, "code")
	_, hasMessage := obj["message"]
	if code != "" {
		if IsDomainCode(code) {
			if hasMessage || errorStatus {
				return Envelope{Kind: KindFlatError, Error: parseErrorBody(obj)}
			}
		} else {
			_, hasDetails := obj["details"]
			_, hasHint := obj["hint"]
			if errorStatus || (hasMessage && (hasDetails || hasHint)) {
				return Envelope{Kind: KindNativeError, Error: parseErrorBody(obj)}
			}
		}
	}

	return Envelope{Kind: KindUnknown, Payload: raw}
}
