package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestAs(actor user.Actor, method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithActor(req.Context(), actor))
}

func TestHandlerCreateAndList(t *testing.T) {
	f := newFixture(t, 5)
	r := NewHandler(f.svc).UserRoutes()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodGet, "/", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":2}],"delivery_type":"express"}`, f.products[0]), http.StatusCreated},
		{"bad json", `{"items":`, http.StatusBadRequest},
		{"empty", `{"items":[]}`, http.StatusUnprocessableEntity},
		{"unknown product", `{"items":[{"product_id":999,"quantity":1}]}`, http.StatusBadRequest},
		{"insufficient stock", fmt.Sprintf(`{"items":[{"product_id":%d,"quantity":50}]}`, f.products[0]), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodGet, "/", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var orders []order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&orders))
	require.Len(t, orders, 1)
	assert.True(t, orders[0].ShippingCost.Equal(dec("50")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.other, http.MethodGet, "/"+orders[0].Number, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodGet, "/?from=yesterday", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCancelAndAdminActions(t *testing.T) {
	f := newFixture(t, 5)
	o := f.create(t, order.CreateLine{ProductID: f.products[0], Quantity: 1})
	admin := NewHandler(f.svc).AdminRoutes(func(r chi.Router) {
		r.Get("/{number}/ping", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chi.URLParam(r, "number")))
		})
	})
	buyer := NewHandler(f.svc).UserRoutes()

	rec := httptest.NewRecorder()
	admin.ServeHTTP(rec, requestAs(f.admin, http.MethodGet, "/"+o.Number+"/ping", ""))
	assert.Equal(t, o.Number, rec.Body.String())

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/"+o.Number+"/processing", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/"+o.Number+"/notes", `{"note":"vip"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/"+o.Number+"/notes", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	buyer.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/"+o.Number+"/cancel", `{"reason":"duplicate"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var got order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, order.StatusCancelled, got.Status)

	rec = httptest.NewRecorder()
	buyer.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/"+o.Number+"/cancel", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	admin.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/"+o.Number+"/confirm", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	p, _ := f.store.GetProduct(context.Background(), f.products[0])
	assert.Equal(t, 5, p.StockQuantity)
}

func TestHandlerCheckoutAndRepeat(t *testing.T) {
	f := newFixture(t, 5)
	c := f.withCart(t)
	r := NewHandler(f.svc).UserRoutes()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/checkout", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.fill(t, c, f.buyer, 2)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/checkout", `{"delivery_type":"express"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var o order.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&o))
	assert.Equal(t, order.DeliveryExpress, o.DeliveryType)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/"+o.Number+"/repeat", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var res ReorderResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 1, res.Added)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.other, http.MethodPost, "/"+o.Number+"/repeat", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
