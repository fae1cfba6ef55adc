package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/push"
	"github.com/manhaj-ai/miniapp/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.pushStore.CreateSubscription(telegramID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles DELETE /api/push/subscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.pushStore.DeleteByEndpoint(req.Endpoint); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscriptions handles GET /api/push/subscriptions
func (h *PushHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	subs, err := h.pushStore.ListByStudent(telegramID)
	if err != nil {
		h.logger.Error("list push subscriptions", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.service.VAPIDPublicKey() == "" {
		writeError(w, http.StatusServiceUnavailable, "push is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": h.service.VAPIDPublicKey()})
}

// Preferences handles GET /api/push/preferences
func (h *PushHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	prefs, err := h.pushStore.GetPreferences(telegramID)
	if err != nil {
		h.logger.Error("get push preferences", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

type preferenceRequest struct {
	NotificationType string `json:"notification_type"`
	Enabled          bool   `json:"enabled"`
}

// SetPreference handles PUT /api/push/preferences
func (h *PushHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.NotificationType == "" {
		writeError(w, http.StatusBadRequest, "notification_type is required")
		return
	}

	if err := h.pushStore.SetPreference(telegramID, req.NotificationType, req.Enabled); err != nil {
		h.logger.Error("set push preference", "telegram_id", telegramID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
