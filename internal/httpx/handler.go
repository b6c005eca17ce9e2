package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/activity"
	"github.com/ariefcatur/go-salon-booking/internal/auth"
	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/ariefcatur/go-salon-booking/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// IdempotencyStore maps (shop, caller, Idempotency-Key) to the appointment
// the first request produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, shopOwnerID, userID, key string) (string, bool, error)
	Remember(ctx context.Context, shopOwnerID, userID, key, appointmentID string) error
}

type RoomSubscriber interface {
	Subscribe(ctx context.Context, room string) (*redisx.Subscription, error)
}

type ActivityReader interface {
	Feed(ctx context.Context, shopOwnerID string, limit int) (activity.Feed, error)
}

// Handler serves the booking API. Idempotency, Rooms and Activity are
// optional; the matching features degrade when they are nil.
type Handler struct {
	Service     *booking.Service
	Verifier    *auth.Verifier
	Idempotency IdempotencyStore
	Rooms       RoomSubscriber
	Activity    ActivityReader
	Log         *zap.Logger

	BookingRatePerMinute int
	RequestTimeout       time.Duration
	Heartbeat            time.Duration
}

func (h *Handler) Register(r chi.Router) {
	timeout := h.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(h.Verifier.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Get("/shops/{ownerID}", h.getShop)
			r.Get("/shops/{ownerID}/slots", h.listSlots)
			r.Get("/shops/{ownerID}/activity", h.activityFeed)

			r.With(requireAuth).Post("/shops", h.registerShop)
			r.With(requireAuth).Get("/appointments/{id}", h.getAppointment)

			r.With(requireOwner).Post("/shops/{ownerID}/slots", h.createSlot)
			r.With(requireOwner).Delete("/shops/{ownerID}/slots/{slotID}", h.deleteSlot)
			r.With(requireOwner).Get("/shops/{ownerID}/appointments", h.listAppointments)

			book := []func(http.Handler) http.Handler{requireAuth}
			if h.BookingRatePerMinute > 0 {
				book = append(book, httprate.LimitByIP(h.BookingRatePerMinute, time.Minute))
			}
			r.With(book...).Post("/shops/{ownerID}/slots/{slotID}/book", h.bookSlot)
		})

		// long-lived, no request timeout
		r.Get("/shops/{ownerID}/events", h.events)
	})
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeMsg(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOwner admits only the owner named by the {ownerID} path segment.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			writeMsg(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if id.Role != auth.RoleOwner || id.UserID != chi.URLParam(r, "ownerID") {
			writeMsg(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type registerShopReq struct {
	Name     string                `json:"name"`
	Address  booking.Address       `json:"address"`
	Services []booking.ServiceItem `json:"services"`
}

func (h *Handler) registerShop(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if id.Role != auth.RoleOwner {
		writeMsg(w, http.StatusForbidden, "only shop owners can register a shop")
		return
	}
	var req registerShopReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	shop, err := h.Service.RegisterShop(r.Context(), booking.Shop{
		OwnerID:  id.UserID,
		Name:     req.Name,
		Address:  req.Address,
		Services: req.Services,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, shop)
}

func (h *Handler) getShop(w http.ResponseWriter, r *http.Request) {
	shop, err := h.Service.GetShop(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Service.ListAvailableSlots(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

type createSlotReq struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (h *Handler) createSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotReq
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, "invalid json, start and end must be RFC3339")
		return
	}
	slot, err := h.Service.CreateSlot(r.Context(), chi.URLParam(r, "ownerID"), req.Start, req.End)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *Handler) deleteSlot(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteSlot(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "slotID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bookSlotResp struct {
	Appointment booking.Appointment `json:"appointment"`
	Event       *booking.SlotChange `json:"event,omitempty"`
	Idempotent  bool                `json:"idempotent,omitempty"`
}

func (h *Handler) bookSlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := auth.FromContext(ctx)
	owner := chi.URLParam(r, "ownerID")
	slotID := chi.URLParam(r, "slotID")

	var req booking.UserInfo
	if err := decode(r, &req); err != nil {
		writeMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	user := booking.UserInfo{
		ID:    id.UserID,
		Name:  firstNonEmpty(req.Name, id.Name),
		Email: firstNonEmpty(req.Email, id.Email),
		Phone: firstNonEmpty(req.Phone, id.Phone),
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	idem := key != "" && h.Idempotency != nil
	if idem {
		apptID, ok, err := h.Idempotency.Lookup(ctx, owner, id.UserID, key)
		switch {
		case err != nil:
			h.Log.Warn("idempotency lookup failed", zap.String("shop_owner_id", owner), zap.Error(err))
		case ok:
			appt, err := h.Service.GetAppointment(ctx, apptID)
			if err != nil {
				h.Log.Warn("idempotent replay failed", zap.String("appointment_id", apptID), zap.Error(err))
				break
			}
			// only the caller's own booking of this very slot is replayed
			if appt.UserID != id.UserID || appt.ShopOwnerID != owner {
				h.Log.Warn("idempotency key owned by another caller", zap.String("appointment_id", apptID))
				break
			}
			if appt.TimeSlotID != slotID {
				writeMsg(w, http.StatusUnprocessableEntity, "idempotency key reused for a different slot")
				return
			}
			writeJSON(w, http.StatusOK, bookSlotResp{Appointment: appt, Idempotent: true})
			return
		}
	}

	res, err := h.Service.BookSlot(ctx, user, owner, slotID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if idem {
		if err := h.Idempotency.Remember(ctx, owner, id.UserID, key, res.Appointment.ID); err != nil {
			h.Log.Warn("idempotency remember failed", zap.String("appointment_id", res.Appointment.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, bookSlotResp{Appointment: res.Appointment, Event: &res.Event})
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.Service.ListAppointments(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// getAppointment is visible to the customer who booked it and to the shop owner.
func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	appt, err := h.Service.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if id.UserID != appt.UserID && id.UserID != appt.ShopOwnerID {
		// same answer as a missing appointment
		writeError(w, h.Log, booking.ErrAppointmentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) activityFeed(w http.ResponseWriter, r *http.Request) {
	if h.Activity == nil {
		writeMsg(w, http.StatusServiceUnavailable, "activity feed disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMsg(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	feed, err := h.Activity.Feed(r.Context(), chi.URLParam(r, "ownerID"), limit)
	if err != nil {
		h.Log.Error("activity feed failed", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeMsg(w, http.StatusServiceUnavailable, "activity feed unavailable")
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
