package server

import (
	"net/http"
	"strings"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/logging"
	"markyt-agent/internal/marketdata"
	"markyt-agent/internal/models"
	"markyt-agent/internal/resilience"
	"markyt-agent/internal/security"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string           `json:"message"`
	History []models.Message `json:"history"`
}

// ChatResponse is the reply of POST /api/chat. History excludes the reply.
type ChatResponse struct {
	Response string           `json:"response"`
	History  []models.Message `json:"history"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Markyt AI Agent API",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		WriteJSON(w, http.StatusOK, resilience.SystemHealth{Status: resilience.HealthStatusHealthy, Components: []resilience.ComponentHealth{}})
		return
	}

	health := s.health.Check(r.Context())
	status := http.StatusOK
	if health.Status == resilience.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, health)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		WriteError(w, http.StatusServiceUnavailable, "chat is not configured: set GROQ_API_KEY or OPENAI_API_KEY")
		return
	}

	var req ChatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	message, err := security.SanitizeText("message", req.Message, security.MaxMessageLength)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(message) == "" {
		WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.chat.Chat(r.Context(), message, req.History)
	if err != nil {
		if errors.Is(err, errors.ErrInputValidation) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			WriteError(w, http.StatusServiceUnavailable, "the language model is unavailable, try again shortly")
			return
		}
		logger := logging.FromContext(r.Context())
		logger.Error().Str("error", security.MaskSensitive(err.Error())).Msg("Chat turn failed")
		WriteError(w, http.StatusInternalServerError, security.MaskSensitive(err.Error()))
		return
	}

	history := result.History
	if history == nil {
		history = []models.Message{}
	}
	WriteJSON(w, http.StatusOK, ChatResponse{Response: result.Response, History: history})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	period := queryOr(r, "period", marketdata.DefaultPeriod)
	interval := queryOr(r, "interval", marketdata.DefaultInterval)

	chart, err := s.market.ChartData(r.Context(), symbol, period, interval)
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, chart)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := s.market.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeMarketError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, quote)
}

// writeMarketError answers 404 for anything the data layer could not serve
// and 500 for unexpected failures.
func (s *Server) writeMarketError(w http.ResponseWriter, r *http.Request, err error) {
	var de *errors.DataError
	if errors.As(err, &de) || errors.Is(err, errors.ErrInputValidation) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	logger := logging.FromContext(r.Context())
	logger.Error().Str("error", security.MaskSensitive(err.Error())).
		Str("symbol", r.PathValue("symbol")).
		Msg("Market request failed")
	WriteError(w, http.StatusInternalServerError, security.MaskSensitive(err.Error()))
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return fallback
}
