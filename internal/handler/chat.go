package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/chat"
)

type ChatHandler struct {
	chat   *chat.Service
	logger *slog.Logger
}

func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, logger: logger}
}

type questionRequest struct {
	Question string `json:"question"`
}

// Question handles POST /api/chat/question. An ad-gated student gets the
// ad link with the rejection so the client can open it straight away.
func (h *ChatHandler) Question(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	answer, err := h.chat.Ask(r.Context(), telegramID, req.Question)
	if err != nil {
		if errors.Is(err, chat.ErrAdRequired) {
			writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"error":       err.Error(),
				"ad_required": true,
				"ad_link":     h.chat.AdLink(r.Context()),
			})
			return
		}
		if !errors.Is(err, chat.ErrEmptyQuestion) && !errors.Is(err, chat.ErrUnavailable) {
			h.logger.Error("chat question", "telegram_id", telegramID, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// AdViewed handles POST /api/chat/ad-viewed
func (h *ChatHandler) AdViewed(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	if err := h.chat.ConfirmAdViewed(r.Context(), telegramID); err != nil {
		h.logger.Error("confirm ad viewed", "telegram_id", telegramID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// History handles GET /api/chat/history?limit=
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := h.chat.History(telegramID, limit)
	if err != nil {
		h.logger.Error("chat history", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ClearHistory handles DELETE /api/chat/history
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	if err := h.chat.ClearHistory(telegramID); err != nil {
		h.logger.Error("clear chat history", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /api/chat/health
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !h.chat.Ready() {
		status = "unconfigured"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"model":  h.chat.Model(),
	})
}
