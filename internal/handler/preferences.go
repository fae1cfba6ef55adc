package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/manhaj-ai/miniapp/internal/store"
)

// Client display preferences live in the local cache only, they never
// touch the remote store.
type PreferencesHandler struct {
	prefs  *store.PreferencesStore
	logger *slog.Logger
}

func NewPreferencesHandler(prefs *store.PreferencesStore, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, logger: logger}
}

// Get handles GET /api/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	all, err := h.prefs.GetAll()
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

type setPreferenceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Set handles PUT /api/preferences
func (h *PreferencesHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Key != store.PrefTheme && req.Key != store.PrefLanguage {
		writeError(w, http.StatusBadRequest, "unknown preference key")
		return
	}

	if err := h.prefs.Set(req.Key, req.Value); err != nil {
		h.logger.Error("set preference", "key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preference")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
