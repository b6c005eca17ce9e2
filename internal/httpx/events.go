package httpx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// events streams a shop's room as server-sent events. Every slot change
// arrives as "event: slots_updated"; bookings also as "event: slot_booked".
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if h.Rooms == nil {
		writeMsg(w, http.StatusServiceUnavailable, "realtime disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMsg(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	owner := chi.URLParam(r, "ownerID")
	sub, err := h.Rooms.Subscribe(ctx, booking.RoomKey(owner))
	if err != nil {
		h.Log.Warn("room subscribe failed", zap.String("shop_owner_id", owner), zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeMsg(w, http.StatusServiceUnavailable, "realtime unavailable")
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}
