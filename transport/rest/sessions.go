package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) getSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	log := that.logger.With("method", "getSession")

	id := params.ByName("id")

	state, err := that.sessions.State(r.Context(), id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: apperror.ErrSessionNotFound.Error()})
		return
	}

	if err != nil {
		log.Error("failed to get session", "sessionID", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (that *Server) deleteSession(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	log := that.logger.With("method", "deleteSession")

	id := params.ByName("id")

	err := that.sessions.EndSession(r.Context(), id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: apperror.ErrSessionNotFound.Error()})
		return
	}

	if err != nil {
		log.Error("failed to end session", "sessionID", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
