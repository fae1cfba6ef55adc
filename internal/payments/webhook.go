package payments

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/manhaj-ai/miniapp/internal/gateway"
)

type WebhookHandler struct {
	client *Client
	gw     gateway.Gateway
	logger *slog.Logger
}

func NewWebhookHandler(client *Client, gw gateway.Gateway, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		client: client,
		gw:     gw,
		logger: logger.With("component", "payments"),
	}
}

// HandleStripeWebhook processes checkout completions. Stripe retries on
// non-2xx, so a failed premium grant returns 500 to get the event again.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.client.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if event.Type == "checkout.session.completed" {
		if err := h.handleCheckoutCompleted(r, event); err != nil {
			http.Error(w, "grant failed", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("unmarshal checkout session", "error", err)
		// Malformed payloads never get better on retry
		return nil
	}

	raw := sess.Metadata["telegram_id"]
	telegramID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || telegramID == 0 {
		h.logger.Error("checkout session missing telegram_id", "metadata", raw)
		return nil
	}

	premium := true
	notGift := false
	if _, err := h.gw.UpdateStudent(r.Context(), telegramID, gateway.StudentUpdate{
		IsPremium:     &premium,
		IsGiftPremium: &notGift,
	}); err != nil {
		h.logger.Error("grant paid premium", "telegram_id", telegramID, "error", err)
		return err
	}

	h.logger.Info("premium purchased", "telegram_id", telegramID, "session", sess.ID)
	return nil
}
