package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"parentseed/internal/counselor"
	"parentseed/internal/emotion"
)

const maxChatHistory = 20

// Counselor is the LLM-backed side of the app.
type Counselor interface {
	Advisor
	Chat(ctx context.Context, message string, history []counselor.Message) (string, error)
}

type CounselorHandler struct {
	counselor Counselor
	logger    *zap.Logger
}

func NewCounselorHandler(c Counselor, logger *zap.Logger) *CounselorHandler {
	return &CounselorHandler{counselor: c, logger: logger}
}

type adviceRequest struct {
	Emotions []string `json:"emotions"`
	Content  string   `json:"content"`
}

// Advice returns advice for an entry draft without storing anything.
func (h *CounselorHandler) Advice(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	tags, ok := emotion.Parse(req.Emotions)
	if !ok || len(tags) == 0 {
		http.Error(w, "emotions must be a non-empty list of known tags", http.StatusBadRequest)
		return
	}
	advice := h.counselor.Advise(r.Context(), tags, strings.TrimSpace(req.Content))
	writeJSON(w, http.StatusOK, map[string]string{"advice": advice})
}

type chatRequest struct {
	Message string              `json:"message"`
	History []counselor.Message `json:"history"`
}

func (h *CounselorHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}
	history := req.History
	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}

	reply, err := h.counselor.Chat(r.Context(), msg, history)
	if err != nil {
		h.logger.Error("counselor chat", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "応答の生成に失敗しました"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}
