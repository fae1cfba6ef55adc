package handler

import (
	"log/slog"
	"net/http"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/payments"
)

type PaymentsHandler struct {
	client *payments.Client
	logger *slog.Logger
}

func NewPaymentsHandler(client *payments.Client, logger *slog.Logger) *PaymentsHandler {
	return &PaymentsHandler{client: client, logger: logger}
}

// Checkout handles POST /api/payments/checkout. The Mini App opens the
// returned URL in an external browser.
func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.client == nil || !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "card payments are not configured")
		return
	}

	telegramID := auth.TelegramID(r.Context())
	url, err := h.client.CreateCheckoutSession(telegramID)
	if err != nil {
		h.logger.Error("create checkout session", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
