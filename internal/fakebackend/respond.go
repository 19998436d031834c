package fakebackend

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeSuccess answers with the v2 {ok:true,data} envelope.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": data})
}

// writeDomainError answers with the nested v2 error envelope. It is sent on any
// status, including 200, as the real backend does for in-band failures.
func writeDomainError(w http.ResponseWriter, status int, code, message, messageKey string) {
	body := map[string]any{"code": code, "message": message}
	if messageKey != "" {
		body["message_key"] = messageKey
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": body})
}

// writeFlatError answers with the flat v2 error shape.
func writeFlatError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "code": code, "message": message})
}

// writeNativeError answers with a PostgREST/PostgreSQL error object.
func writeNativeError(w http.ResponseWriter, status int, code, message, details, hint string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"details": nullable(details),
		"hint":    nullable(hint),
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeParams(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
