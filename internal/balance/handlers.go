package balance

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/types/balance"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(l *Ledger) *Handler {
	return &Handler{ledger: l}
}

// UserRoutes are mounted under /api/user/balance.
func (h *Handler) UserRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetBalance)
	r.Get("/transactions", h.ListTransactions)
	return r
}

// AdminRoutes are mounted under /api/admin/buyers.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/balance/deposit", h.Deposit)
	r.Post("/{id}/balance/adjust", h.Adjust)
	r.Get("/{id}/balance/audit", h.Audit)
	return r
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrBuyerNotFound):
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

func buyerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	current, err := h.ledger.Balance(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance.BalanceDTO{Current: current})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	ts, err := h.ledger.Transactions(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(ts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (int64, *balance.AmountRequest, bool) {
	id, ok := buyerID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, nil, false
	}
	var req balance.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, nil, false
	}
	return id, &req, true
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	t, err := h.ledger.Deposit(r.Context(), id, req.Amount, req.Reason, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decode(w, r)
	if !ok {
		return
	}
	t, err := h.ledger.SetAbsolute(r.Context(), id, req.Amount, req.Reason, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	id, ok := buyerID(r)
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
