package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: true,
		Data:    data,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Raw writes the payload as-is, without the success envelope. Used by routes
// whose body shape is fixed by the callers (contact, csp-report, whatsapp).
func Raw(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := APIResponse{
		Success: false,
		Message: msg,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// FieldErrors returns a 400 with per-field validation messages.
func FieldErrors(w http.ResponseWriter, msg string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	_ = json.NewEncoder(w).Encode(struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}{false, msg, fields})
}

// TooManyRequests sets Retry-After before writing the 429 body.
func TooManyRequests(w http.ResponseWriter, retryAfterSeconds int, msg string) {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	Error(w, http.StatusTooManyRequests, msg)
}
