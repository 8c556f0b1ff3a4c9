package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agusx1211/brood/internal/debug"
	"github.com/agusx1211/brood/internal/hexid"
	"github.com/agusx1211/brood/internal/roster"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		debug.LogKV("webserver", "failed to encode json response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// agentID validates the {id} path value so it can never name a file
// outside the responses directory.
func agentID(r *http.Request) (string, bool) {
	id := r.PathValue("id")
	return id, hexid.IsAgentID(id)
}

func (srv *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := srv.src.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []roster.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (srv *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	a, err := srv.src.Get(id)
	if errors.Is(err, roster.ErrUnknownAgent) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (srv *Server) handleAgentLog(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	body, err := srv.src.Body(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "log not found")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
