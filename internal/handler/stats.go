package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/manhaj-ai/miniapp/internal/account"
	"github.com/manhaj-ai/miniapp/internal/auth"
	"github.com/manhaj-ai/miniapp/internal/economy"
	"github.com/manhaj-ai/miniapp/internal/gateway"
)

type StatsHandler struct {
	gw       gateway.Gateway
	accounts *account.Service
	economy  *economy.Service
	logger   *slog.Logger
}

func NewStatsHandler(gw gateway.Gateway, accounts *account.Service, svc *economy.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{gw: gw, accounts: accounts, economy: svc, logger: logger}
}

// Me handles GET /api/me
func (h *StatsHandler) Me(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	student, err := h.accounts.Profile(r.Context(), telegramID)
	if err != nil {
		h.logger.Error("profile", "telegram_id", telegramID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// MeStats handles GET /api/me/stats
func (h *StatsHandler) MeStats(w http.ResponseWriter, r *http.Request) {
	telegramID := auth.TelegramID(r.Context())

	stats, err := h.accounts.Stats(r.Context(), telegramID)
	if err != nil {
		h.logger.Error("student stats", "telegram_id", telegramID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Leaderboard handles GET /api/leaderboard?limit=
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.economy.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.Error("leaderboard", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Statistics handles GET /api/statistics
func (h *StatsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gw.Statistics(r.Context())
	if err != nil {
		h.logger.Error("statistics", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Settings handles GET /api/settings. Only client-facing settings leave
// the server.
func (h *StatsHandler) Settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.gw.ListSettings(r.Context())
	if err != nil {
		h.logger.Error("settings", "error", err)
		writeDomainError(w, err)
		return
	}

	public := map[string]string{}
	for _, key := range []string{"premium_price", "ad_response_limit", "ad_link"} {
		if v, ok := settings[key]; ok {
			public[key] = v
		}
	}
	writeJSON(w, http.StatusOK, public)
}
