// internal/order/handlers.go
package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/antonminaichev/wholesale/internal/cart"
	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UserRoutes are mounted under /api/user/orders. extra lets other packages hang
// their own /{number}/... endpoints on the same router.
func (h *Handler) UserRoutes(extra ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/checkout", h.Checkout)
	r.Get("/", h.List)
	r.Get("/{number}", h.Get)
	r.Post("/{number}/cancel", h.Cancel)
	r.Post("/{number}/repeat", h.Reorder)
	for _, fn := range extra {
		fn(r)
	}
	return r
}

func (h *Handler) AdminRoutes(extra ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{number}", h.Get)
	r.Post("/{number}/confirm", h.Confirm)
	r.Post("/{number}/processing", h.MarkProcessing)
	r.Post("/{number}/cancel", h.Cancel)
	r.Post("/{number}/notes", h.AddNote)
	for _, fn := range extra {
		fn(r)
	}
	return r
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidOrderType),
		errors.Is(err, ErrMissingShipping),
		errors.Is(err, ErrBelowMinimumQuantity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrProductUnavailable),
		errors.Is(err, ErrNoCompany),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrUnavailableItems),
		errors.Is(err, ErrNothingReordered):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrNotPayable),
		errors.Is(err, ErrNotShippable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrOrderNotFound):
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := h.svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// Checkout creates the order from the caller's cart. The body carries delivery
// details only; lines come from the cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	o, err := h.svc.CreateFromCart(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reorder(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "number"))
	if errors.Is(err, ErrNothingReordered) {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{
		Status:        order.OrderStatus(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("payment_status")),
	}
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.UserID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return f, err
			}
			*dst = &t
		}
	}
	return f, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	orders, err := h.svc.List(r.Context(), middleware.ActorFromContext(r.Context()), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDetail(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type actionFunc func(h *Handler, r *http.Request, o *order.Order) (*order.Order, error)

// byNumber resolves {number} for the caller and runs fn on the order id.
func (h *Handler) byNumber(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.ActorFromContext(r.Context())
		o, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "number"))
		if err != nil {
			writeError(w, err)
			return
		}
		o, err = fn(h, r, o)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

type noteRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func decodeNote(r *http.Request) noteRequest {
	var req noteRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	return req
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.byNumber(func(h *Handler, r *http.Request, o *order.Order) (*order.Order, error) {
		return h.svc.Cancel(r.Context(), middleware.ActorFromContext(r.Context()), o.ID, decodeNote(r).Reason)
	})(w, r)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.byNumber(func(h *Handler, r *http.Request, o *order.Order) (*order.Order, error) {
		return h.svc.Confirm(r.Context(), middleware.ActorFromContext(r.Context()), o.ID)
	})(w, r)
}

func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	h.byNumber(func(h *Handler, r *http.Request, o *order.Order) (*order.Order, error) {
		return h.svc.MarkProcessing(r.Context(), middleware.ActorFromContext(r.Context()), o.ID)
	})(w, r)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	req := decodeNote(r)
	if req.Note == "" {
		http.Error(w, "note is required", http.StatusBadRequest)
		return
	}
	h.byNumber(func(h *Handler, r *http.Request, o *order.Order) (*order.Order, error) {
		return h.svc.AddInternalNote(r.Context(), middleware.ActorFromContext(r.Context()), o.ID, req.Note)
	})(w, r)
}
