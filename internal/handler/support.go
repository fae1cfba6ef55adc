package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/gateway"
	"github.com/manhaj-ai/miniapp/internal/model"
)

type SupportHandler struct {
	gw     gateway.Gateway
	logger *slog.Logger
}

func NewSupportHandler(gw gateway.Gateway, logger *slog.Logger) *SupportHandler {
	return &SupportHandler{gw: gw, logger: logger}
}

type supportRequest struct {
	Message string `json:"message"`
}

// Create handles POST /api/support
func (h *SupportHandler) Create(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req supportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if _, err := h.gw.CreateSupportMessage(r.Context(), model.SupportMessage{
		UserID:  telegramID,
		Message: req.Message,
	}); err != nil {
		h.logger.Error("create support message", "telegram_id", telegramID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}
