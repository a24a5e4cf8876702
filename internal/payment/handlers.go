package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/antonminaichev/wholesale/internal/middleware"
	orders "github.com/antonminaichev/wholesale/internal/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	proc *Processor
}

func NewHandler(p *Processor) *Handler {
	return &Handler{proc: p}
}

// UserRoutes are mounted under /api/user/payments.
func (h *Handler) UserRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Process)
	return r
}

func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	return r
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPaymentMethod), errors.Is(err, ErrMissingReceipt):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrNotPayable), errors.Is(err, ErrNotPending):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrGatewayUnavailable):
		http.Error(w, ErrGatewayUnavailable.Error(), http.StatusBadGateway)
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, ErrTransactionNotFound):
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

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req payment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNumber == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	res, err := h.proc.Process(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func paymentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	t, err := h.proc.ApproveBankTransfer(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}
	t, err := h.proc.RejectBankTransfer(r.Context(), middleware.ActorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Webhook receives the card gateway's form-encoded callback.
// The gateway retries until it reads a plain "OK" body.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "INVALID_REQUEST", http.StatusBadRequest)
		return
	}
	cb := payment.Callback{
		MerchantOID:     r.PostForm.Get("merchant_oid"),
		Status:          r.PostForm.Get("status"),
		TotalAmount:     r.PostForm.Get("total_amount"),
		Hash:            r.PostForm.Get("hash"),
		MaskedPAN:       r.PostForm.Get("masked_pan"),
		CardHolderName:  r.PostForm.Get("card_holder_name"),
		FailedReasonMsg: r.PostForm.Get("failed_reason_msg"),
	}
	if cb.MerchantOID == "" || cb.Status == "" || cb.Hash == "" {
		http.Error(w, "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	err := h.proc.HandleCallback(r.Context(), cb)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	case errors.Is(err, ErrInvalidHash):
		http.Error(w, "INVALID_REQUEST", http.StatusBadRequest)
	case errors.Is(err, ErrTransactionNotFound):
		http.Error(w, "FAILED", http.StatusNotFound)
	default:
		http.Error(w, "FAILED", http.StatusInternalServerError)
	}
}
