package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/antonminaichev/wholesale/internal/middleware"
	"github.com/antonminaichev/wholesale/internal/types/order"
	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestAs(actor user.Actor, method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.ContextWithActor(req.Context(), actor))
}

func TestHandlerProcess(t *testing.T) {
	f := newFixture(t, "50")
	o := f.newOrder(t)
	r := NewHandler(f.proc).UserRoutes()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"no order", `{"payment_method":"balance"}`, http.StatusBadRequest},
		{"bad method", fmt.Sprintf(`{"order_number":%q,"payment_method":"cash"}`, o.Number), http.StatusUnprocessableEntity},
		{"unknown order", `{"order_number":"WS000","payment_method":"balance"}`, http.StatusNotFound},
		{"insufficient balance", fmt.Sprintf(`{"order_number":%q,"payment_method":"balance"}`, o.Number), http.StatusPaymentRequired},
		{"missing receipt", fmt.Sprintf(`{"order_number":%q,"payment_method":"bank_transfer"}`, o.Number), http.StatusUnprocessableEntity},
		{"card", fmt.Sprintf(`{"order_number":%q,"payment_method":"credit_card"}`, o.Number), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, requestAs(f.buyer, http.MethodPost, "/", tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerApproveReject(t *testing.T) {
	f := newFixture(t, "0")
	o := f.newOrder(t)
	res, err := f.proc.Process(context.Background(), f.buyer, receiptRequest(o.Number))
	require.NoError(t, err)
	r := NewHandler(f.proc).AdminRoutes()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/abc/approve", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, fmt.Sprintf("/%d/reject", res.Transaction.ID), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, fmt.Sprintf("/%d/approve", res.Transaction.ID), ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var got payment.Transaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, payment.StatusSuccess, got.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, fmt.Sprintf("/%d/reject", res.Transaction.ID), `{"reason":"late"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, requestAs(f.admin, http.MethodPost, "/9999/approve", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postForm(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandlerWebhook(t *testing.T) {
	f := newFixture(t, "0")
	o, oid := f.startCard(t)
	h := NewHandler(f.proc)

	valid := callback(oid, "success", "14500")
	form := url.Values{
		"merchant_oid": {valid.MerchantOID},
		"status":       {valid.Status},
		"total_amount": {valid.TotalAmount},
		"hash":         {valid.Hash},
		"masked_pan":   {valid.MaskedPAN},
	}

	t.Run("missing fields", func(t *testing.T) {
		rec := postForm(h.Webhook, url.Values{"merchant_oid": {oid}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
	})

	t.Run("tampered", func(t *testing.T) {
		bad := url.Values{}
		for k, v := range form {
			bad[k] = v
		}
		bad.Set("total_amount", "1")
		rec := postForm(h.Webhook, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, order.PaymentPending, f.reload(t, o).PaymentStatus)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		cb := callback("PAYNOPE", "success", "14500")
		rec := postForm(h.Webhook, url.Values{
			"merchant_oid": {cb.MerchantOID}, "status": {cb.Status}, "total_amount": {cb.TotalAmount}, "hash": {cb.Hash},
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ok", func(t *testing.T) {
		rec := postForm(h.Webhook, form)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
		assert.Equal(t, order.PaymentPaid, f.reload(t, o).PaymentStatus)

		rec = postForm(h.Webhook, form)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
