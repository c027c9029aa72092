// internal/common/http/respond.go
package http

import (
	"encoding/json"
	"net/http"
)

// RespondJSON marshals body as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RelayJSON writes an already-serialized upstream JSON payload verbatim.
func RelayJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
