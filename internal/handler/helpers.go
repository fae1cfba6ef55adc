package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/manhaj-ai/miniapp/internal/account"
	"github.com/manhaj-ai/miniapp/internal/chat"
	"github.com/manhaj-ai/miniapp/internal/economy"
	"github.com/manhaj-ai/miniapp/internal/gateway"
)

// Broadcaster pushes domain events to connected clients. The websocket hub
// implements it; handlers treat a nil broadcaster as a no-op.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

// writeDomainError maps service errors onto HTTP statuses. Validation and
// lookup failures are final; a rejected balance write gets a conflict with
// a retry hint since re-running the whole flow against fresh balances is
// the only safe recovery.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, economy.ErrAmountInvalid),
		errors.Is(err, economy.ErrAmountTooSmall),
		errors.Is(err, economy.ErrSelfTransfer),
		errors.Is(err, account.ErrNameTooShort),
		errors.Is(err, account.ErrNameInvalid),
		errors.Is(err, account.ErrStageRequired),
		errors.Is(err, account.ErrCountryRequired),
		errors.Is(err, chat.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrInsufficientPoints),
		errors.Is(err, economy.ErrInsufficientRiyal):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"retry": true,
		})
	case errors.Is(err, economy.ErrAlreadyPremium),
		errors.Is(err, economy.ErrAlreadyCompleted),
		errors.Is(err, account.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, economy.ErrReceiverNotFound),
		errors.Is(err, economy.ErrTaskInvalid),
		errors.Is(err, account.ErrNotRegistered),
		errors.Is(err, gateway.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrCreditPending):
		writeJSON(w, http.StatusAccepted, map[string]any{
			"error": err.Error(),
			"retry": true,
		})
	case errors.Is(err, gateway.ErrWriteRejected):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "a concurrent change rejected the write, retry the operation",
			"retry": true,
		})
	case errors.Is(err, chat.ErrAdRequired):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":       err.Error(),
			"ad_required": true,
		})
	case errors.Is(err, chat.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "tutor is unavailable, try again later")
	default:
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			writeError(w, http.StatusBadGateway, "upstream store error")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
