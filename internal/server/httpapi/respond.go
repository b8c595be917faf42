package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// isoLayout matches the naive UTC ISO-8601 timestamps clients expect.
const isoLayout = "2006-01-02T15:04:05.000000"

func isoTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondAuthError uses the {"msg": ...} shape of token failures.
func respondAuthError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"msg": message})
}

// decodeJSON reads a JSON object into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
