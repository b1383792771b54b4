package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменную ошибку в HTTP-статус. Неклассифицированные
// ошибки не раскрываются клиенту и пишутся в лог как внутренние.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case isValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsForbidden(err):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case domain.IsConflict(err), domain.IsIdempotencyConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case domain.IsRetryable(err):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		logger.WithError(err).Error("Необработанная ошибка запроса")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isValidation(err error) bool {
	return errors.Is(err, domain.ErrUserRequired) ||
		errors.Is(err, domain.ErrProductRequired) ||
		errors.Is(err, domain.ErrQuantityInvalid) ||
		errors.Is(err, domain.ErrPriceInvalid) ||
		errors.Is(err, domain.ErrAmountMismatch) ||
		errors.Is(err, domain.ErrCurrencyRequired) ||
		errors.Is(err, domain.ErrPaymentMethodRequired) ||
		errors.Is(err, domain.ErrShippingIncomplete) ||
		errors.Is(err, domain.ErrIdempotencyKeyRequired)
}
