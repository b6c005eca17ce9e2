package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type errorResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResp{Error: msg})
}

// writeError maps the booking error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, booking.ErrValidation):
		writeMsg(w, http.StatusBadRequest, err.Error())
	case booking.IsNotFound(err):
		writeMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotOverlap),
		errors.Is(err, booking.ErrShopExists):
		writeMsg(w, http.StatusConflict, err.Error())
	case booking.IsRetryable(err):
		log.Warn("transient store error", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeMsg(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		log.Error("request failed", zap.Error(err))
		writeMsg(w, http.StatusInternalServerError, "internal error")
	}
}
