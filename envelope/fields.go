package envelope

import (
	"encoding/json"
	"strings"
)

func parseErrorBody(obj map[string]json.RawMessage) *ErrorBody {
	body := &ErrorBody{
		Code:       stringField(obj, "code"),
		Message:    stringField(obj, "message", "msg"),
		MessageKey: stringField(obj, "message_key", "messageKey"),
		TraceID:    stringField(obj, "trace_id", "traceId"),
		Details:    stringField(obj, "details"),
		Hint:       stringField(obj, "hint"),
	}
	for _, key := range []string{"params", "message_params", "messageParams"} {
		if raw, ok := obj[key]; ok {
			var params map[string]any
			if err := json.Unmarshal(raw, &params); err == nil && len(params) > 0 {
				body.MessageParams = params
				break
			}
		}
	}
	for _, key := range []string{"fields", "field_errors", "fieldErrors"} {
		if raw, ok := obj[key]; ok {
			if fields := parseFieldErrors(raw); len(fields) > 0 {
				body.FieldErrors = fields
				break
			}
		}
	}
	return body
}

// parseFieldErrors accepts {pointer: message} or [{field|pointer|path, message}].
func parseFieldErrors(raw json.RawMessage) map[string]string {
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		fields := make(map[string]string, len(asMap))
		for pointer, msg := range asMap {
			if s := scalarString(msg); s != "" {
				fields[pointer] = s
			}
		}
		return fields
	}

	var asList []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil
	}
	fields := make(map[string]string, len(asList))
	for _, item := range asList {
		pointer := stringField(item, "pointer", "field", "path")
		if pointer == "" {
			continue
		}
		fields[pointer] = stringField(item, "message", "msg")
	}
	return fields
}

// stringField returns the first key present as a string (numbers are rendered).
func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if raw, ok := obj[key]; ok {
			if s := scalarString(raw); s != "" {
				return s
			}
		}
	}
	return ""
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func boolField(obj map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := obj[key]
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

func objectField(obj map[string]json.RawMessage, key string) (map[string]json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
		return nil, false
	}
	return nested, true
}

// extractMessage pulls a message out of an unrecognized error body, or falls
// back to the raw text when it is short enough to be useful.
func extractMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if msg := stringField(obj, "message", "error_description", "error"); msg != "" {
			return msg
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if text == "" || len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
