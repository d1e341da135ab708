package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// internalError logs err with the request id and returns a generic message to the client
func (s *server) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.logger.Error(message,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// badRequest logs err and returns clientMessage to the client
func (s *server) badRequest(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	s.logger.Warn("bad request",
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusBadRequest, clientMessage)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
