package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"ms-registration/internal/apperr"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError answers with the status matching err's code. Errors without a
// code are reported as internal without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	resp := ErrorResponse(string(code), "internal error")

	var e *apperr.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		if code == apperr.CodeStorageFailure {
			resp.Error = "storage unavailable"
		}
	}
	resp.Code = string(code)
	WriteJSON(w, code.HTTPStatus(), resp)
}

// WriteErrorMessage is for failures raised in the transport layer itself.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse(http.StatusText(status), message))
}

// DecodeJSON reads a size-bounded JSON body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgument("invalid request body: %v", err)
	}
	return nil
}
