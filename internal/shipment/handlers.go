package shipment

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/antonminaichev/wholesale/internal/logger"
	"github.com/antonminaichev/wholesale/internal/middleware"
	orders "github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/types/shipment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(t *Tracker) *Handler {
	return &Handler{tracker: t}
}

// UserRoutes hangs tracking on the buyer order router.
func (h *Handler) UserRoutes(r chi.Router) {
	r.Get("/{number}/tracking", h.Tracking)
}

func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/{number}/ship", h.Ship)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotShippable), errors.Is(err, ErrShipmentExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrCarrierUnavailable):
		http.Error(w, ErrCarrierUnavailable.Error(), http.StatusBadGateway)
	case errors.Is(err, orders.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, orders.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) Tracking(w http.ResponseWriter, r *http.Request) {
	tr, err := h.tracker.GetTracking(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	o, err := h.tracker.orders.Get(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	sh, err := h.tracker.CreateShipment(r.Context(), actor, o.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

const (
	eventStatusChanged = "shipment.status_changed"
	eventDelivered     = "shipment.delivered"
	eventReturned      = "shipment.returned"
)

type webhookPayload struct {
	EventType         string     `json:"event_type"`
	TrackingNumber    string     `json:"trackingNumber"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"statusDescription"`
	ReceiverName      string     `json:"receiverName"`
	DeliveryDate      *time.Time `json:"deliveryDate"`
	ReturnReason      string     `json:"returnReason"`
}

// Webhook receives carrier pushes. Mount it behind middleware.SignatureHandler.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.TrackingNumber == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	u := shipment.Update{
		TrackingNumber: p.TrackingNumber,
		CarrierStatus:  p.Status,
		Description:    p.StatusDescription,
		DeliveryDate:   p.DeliveryDate,
		ReceiverName:   p.ReceiverName,
	}
	switch p.EventType {
	case eventStatusChanged:
	case eventDelivered:
		u.CarrierStatus = "DELIVERED"
	case eventReturned:
		u.CarrierStatus = "RETURNED"
		u.Description = p.ReturnReason
	default:
		logger.Log.Warn("unknown carrier webhook type", zap.String("event_type", p.EventType))
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	if err := h.tracker.IngestStatusUpdate(r.Context(), u); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
