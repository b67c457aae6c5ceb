package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PythonSwapCoin/LLM-finance-arena-sub000/internal/marketdata"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports liveness plus the backend signals that drive UI
// badges: whether the US market is open and whether any price source is
// currently throttled.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"market_open": marketdata.MarketOpen(time.Now()),
		"throttled":   s.provider.Throttled(),
		"time":        time.Now().UTC(),
	})
}

func (s *Server) handleTypes(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.manager.Instance(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown competition")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"state":           inst.State(),
		"marketTelemetry": s.provider.Telemetry(),
	})
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.manager.Instance(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown competition")
		return
	}

	next, secs := inst.NextTradeWindow(time.Now())
	s.respondJSON(w, http.StatusOK, map[string]any{
		"nextTradeWindowTimestamp": next.UTC(),
		"countdownSeconds":         secs,
	})
}

type chatSubmitRequest struct {
	Username string `json:"username"`
	AgentID  string `json:"agentId,omitempty"`
	Content  string `json:"content"`
}

// handleChatSubmit appends a community message. Validation failures come
// back as a 400 with the validator's message verbatim.
func (s *Server) handleChatSubmit(w http.ResponseWriter, r *http.Request) {
	var req chatSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.manager.SubmitChat(chi.URLParam(r, "id"), req.Username, req.AgentID, req.Content)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	inst, _ := s.manager.Instance(chi.URLParam(r, "id"))
	state := inst.State()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": msg,
		"chat":    state.Chat,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
