package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	svcerrors "github.com/aisaas/backend/internal/errors"
	"github.com/aisaas/backend/internal/logging"
)

// Envelope is the uniform response body of every API endpoint.
type Envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Content   string      `json:"content,omitempty"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	Details   string      `json:"details,omitempty"`
	Creations interface{} `json:"creations,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a 200 envelope with success set.
func WriteSuccess(w http.ResponseWriter, env Envelope) {
	env.Success = true
	WriteJSON(w, http.StatusOK, env)
}

// WriteErrorResponse writes a failure envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string, details map[string]interface{}) {
	env := Envelope{Success: false, Message: message}
	if d, ok := details["details"]; ok {
		env.Details = fmt.Sprint(d)
	}
	if r != nil {
		if traceID := logging.GetTraceID(r.Context()); traceID != "" {
			w.Header().Set("X-Trace-ID", traceID)
		}
	}
	WriteJSON(w, status, env)
}

// WriteError maps err to a failure envelope. Errors that are not a
// ServiceError are reported as 500 with the error text, matching what the
// handlers have always exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		WriteErrorResponse(w, r, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	WriteErrorResponse(w, r, se.HTTPStatus, se.Message, se.Details)
}

// Unauthorized writes a 401 envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, nil, svcerrors.Unauthorized(message))
}
