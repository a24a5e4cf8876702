package stock

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/types/ref"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(l *Ledger) *Handler {
	return &Handler{ledger: l}
}

// Routes are mounted under /api/admin/products behind the admin middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/stock/in", h.StockIn)
	r.Post("/{id}/stock/out", h.StockOut)
	r.Post("/{id}/stock/adjust", h.Adjust)
	r.Get("/{id}/stock/movements", h.Movements)
	r.Get("/{id}/stock/audit", h.Audit)
	return r
}

type stockRequest struct {
	Quantity int              `json:"quantity"`
	Reason   string           `json:"reason"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	OrderID  *int64           `json:"order_id,omitempty"`
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (int64, *stockRequest, bool) {
	id, ok := productID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, nil, false
	}
	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, nil, false
	}
	return id, &req, true
}

func (h *Handler) StockIn(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	m, err := h.ledger.CommitIn(r.Context(), id, req.Quantity, req.Reason, req.UnitCost, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// StockOut books a manual outgoing movement such as damage or a sample.
func (h *Handler) StockOut(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	var reference *ref.Ref
	if req.OrderID != nil {
		reference = ref.Order(*req.OrderID)
	}
	m, err := h.ledger.CommitOut(r.Context(), id, req.Quantity, req.Reason, reference, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	m, err := h.ledger.Adjust(r.Context(), id, req.Quantity, req.Reason, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ms, err := h.ledger.Movements(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(ms) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	rep, err := h.ledger.Audit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
