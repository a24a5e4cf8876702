package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/payment"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const iframeBase = "https://www.paytr.com/odeme/guvenli/"

type GatewayConfig struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	BaseURL      string
	OkURL        string
	FailURL      string
	TestMode     bool
	Debug        bool
	// TimeoutLimit is how many minutes the hosted form stays valid.
	TimeoutLimit int
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (c GatewayConfig) sign(msg string) string {
	mac := hmac.New(sha256.New, []byte(c.MerchantKey))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type TokenFields struct {
	UserIP      string
	MerchantOID string
	Email       string
	AmountMinor int64
	Basket      string // base64 JSON
}

const (
	noInstallment   = "0"
	maxInstallment  = "12"
	gatewayCurrency = "TL"
)

// PaymentToken is base64(HMAC-SHA256(key, merchant_id+ip+oid+email+amount+basket+no_installment+max_installment+currency+test_mode+salt)).
func (c GatewayConfig) PaymentToken(f TokenFields) string {
	var b strings.Builder
	b.WriteString(c.MerchantID)
	b.WriteString(f.UserIP)
	b.WriteString(f.MerchantOID)
	b.WriteString(f.Email)
	b.WriteString(fmt.Sprint(f.AmountMinor))
	b.WriteString(f.Basket)
	b.WriteString(noInstallment)
	b.WriteString(maxInstallment)
	b.WriteString(gatewayCurrency)
	b.WriteString(flag(c.TestMode))
	b.WriteString(c.MerchantSalt)
	return c.sign(b.String())
}

// CallbackHash is the hash the gateway sends with its asynchronous notification.
func (c GatewayConfig) CallbackHash(merchantOID, status, totalAmount string) string {
	return c.sign(merchantOID + c.MerchantSalt + status + totalAmount)
}

func (c GatewayConfig) VerifyCallback(cb payment.Callback) bool {
	want := c.CallbackHash(cb.MerchantOID, cb.Status, cb.TotalAmount)
	return hmac.Equal([]byte(want), []byte(cb.Hash))
}

type Buyer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	IP      string
}

func (c GatewayConfig) TokenForm(oid string, amountMinor int64, basket string, b Buyer) url.Values {
	f := TokenFields{UserIP: b.IP, MerchantOID: oid, Email: b.Email, AmountMinor: amountMinor, Basket: basket}
	timeout := c.TimeoutLimit
	if timeout <= 0 {
		timeout = 30
	}
	return url.Values{
		"merchant_id":       {c.MerchantID},
		"user_ip":           {b.IP},
		"merchant_oid":      {oid},
		"email":             {b.Email},
		"payment_amount":    {fmt.Sprint(amountMinor)},
		"paytr_token":       {c.PaymentToken(f)},
		"user_basket":       {basket},
		"debug_on":          {flag(c.Debug)},
		"no_installment":    {noInstallment},
		"max_installment":   {maxInstallment},
		"user_name":         {b.Name},
		"user_address":      {b.Address},
		"user_phone":        {b.Phone},
		"merchant_ok_url":   {c.OkURL},
		"merchant_fail_url": {c.FailURL},
		"timeout_limit":     {fmt.Sprint(timeout)},
		"currency":          {gatewayCurrency},
		"test_mode":         {flag(c.TestMode)},
	}
}

func IframeURL(token string) string {
	return iframeBase + token
}

type TokenRequester interface {
	RequestToken(ctx context.Context, form url.Values) (string, error)
}

type HTTPGateway struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

type tokenResponse struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

func (g *HTTPGateway) RequestToken(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/odeme/api/get-token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	if tr.Status != "success" || tr.Token == "" {
		return "", fmt.Errorf("gateway refused: %s", tr.Reason)
	}
	return tr.Token, nil
}
