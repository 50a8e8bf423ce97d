// Package response writes the JSON envelope shared by every HTTP endpoint.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Cached    *bool  `json:"cached,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Now is swapped in tests.
var Now = time.Now

// Write encodes env with the given status.
func Write(w http.ResponseWriter, status int, env Envelope) {
	env.Timestamp = Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// OK writes a successful payload.
func OK(w http.ResponseWriter, data any) {
	Write(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Cached writes a successful payload read through the query cache.
func Cached(w http.ResponseWriter, data any, cached bool) {
	Write(w, http.StatusOK, Envelope{Success: true, Data: data, Cached: &cached})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	Write(w, status, Envelope{Success: false, Message: message})
}
