package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body. It uses the same "detail" key as the authority so one
// client-side parser handles both.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteDetail writes an error response with a custom message
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	_ = WriteJSON(w, status, ErrorResponse{Detail: detail})
}

// WriteError writes err as the detail of an error response
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteDetail(w, status, err.Error())
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteDetail(w, http.StatusBadRequest, detail)
}

// WriteBadGateway writes an upstream failure (502)
func WriteBadGateway(w http.ResponseWriter, detail string) {
	WriteDetail(w, http.StatusBadGateway, detail)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}
