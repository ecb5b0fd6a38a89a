package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody is the error envelope every API error uses. Clients switch on
// Code; Message is for humans.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// JSON writes v with the given status. A nil v writes the status line and
// headers only.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httputil] encode response: %v", err)
	}
}

// Error writes the standard error envelope.
func Error(w http.ResponseWriter, status int, code, message string) {
	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = message
	JSON(w, status, body)
}

// Decode reads the JSON request body into dst, answering a validation
// error on malformed input.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return false
	}
	return true
}
