package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentToken(t *testing.T) {
	f := TokenFields{UserIP: "198.51.100.7", MerchantOID: "PAY1", Email: "a@b.c", AmountMinor: 14500, Basket: "W10="}
	mac := hmac.New(sha256.New, []byte("merchant-key"))
	mac.Write([]byte("100200" + "198.51.100.7" + "PAY1" + "a@b.c" + "14500" + "W10=" + "0" + "12" + "TL" + "1" + "merchant-salt"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, testGateway.PaymentToken(f))
}

func TestVerifyCallback(t *testing.T) {
	tests := []struct {
		name string
		edit func(cb *payment.Callback)
		want bool
	}{
		{"valid", func(*payment.Callback) {}, true},
		{"tampered amount", func(cb *payment.Callback) { cb.TotalAmount = "1" }, false},
		{"tampered status", func(cb *payment.Callback) { cb.Status = "failed" }, false},
		{"empty hash", func(cb *payment.Callback) { cb.Hash = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := callback("PAY1", "success", "14500")
			tt.edit(&cb)
			assert.Equal(t, tt.want, testGateway.VerifyCallback(cb))
		})
	}
}

func TestTokenFormDefaults(t *testing.T) {
	form := testGateway.TokenForm("PAY1", 100, "W10=", Buyer{Name: "N", Email: "e", IP: "1.2.3.4"})
	assert.Equal(t, "30", form.Get("timeout_limit"))
	assert.Equal(t, "1", form.Get("test_mode"))
	assert.Equal(t, "0", form.Get("debug_on"))
	assert.Equal(t, "TL", form.Get("currency"))
	assert.Equal(t, "100200", form.Get("merchant_id"))
}

func TestHTTPGatewayRequestToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"success", http.StatusOK, `{"status":"success","token":"abc"}`, "abc", false},
		{"refused", http.StatusOK, `{"status":"failed","reason":"merchant_oid duplicate"}`, "", true},
		{"server error", http.StatusInternalServerError, ``, "", true},
		{"bad body", http.StatusOK, `not json`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got url.Values
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/odeme/api/get-token", r.URL.Path)
				require.NoError(t, r.ParseForm())
				got = r.PostForm
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewHTTPGateway(srv.URL+"/", time.Second)
			token, err := g.RequestToken(context.Background(), url.Values{"merchant_oid": {"PAY1"}})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
			assert.Equal(t, "PAY1", got.Get("merchant_oid"))
		})
	}
}
