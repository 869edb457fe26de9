package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sokoni-dev/backend-sokoni/internal/resilience"
)

// Nairobi time; Daraja rejects password timestamps in other zones.
var eat = time.FixedZone("EAT", 3*60*60)

const (
	darajaTimestampLayout = "20060102150405"
	maxAccountRefLen      = 12
	maxDescriptionLen     = 13
)

// ErrSTKRejected is returned when Daraja accepts the request transport-wise
// but refuses to initiate the push.
var ErrSTKRejected = errors.New("mpesa: stk push rejected")

// Mpesa is a Daraja API client implementing Provider. All outbound calls go
// through the resilience wrapper so transient gateway errors are retried and
// a flapping gateway trips the breaker.
type Mpesa struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	HTTP           resilience.HTTPClient
	Now            func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewMpesa builds a client with a retrying HTTP wrapper and its own breaker.
func NewMpesa(baseURL, key, secret, shortcode, passkey, callbackURL string, timeout time.Duration) *Mpesa {
	return &Mpesa{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ConsumerKey:    key,
		ConsumerSecret: secret,
		Shortcode:      shortcode,
		Passkey:        passkey,
		CallbackURL:    callbackURL,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("daraja"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		Now: time.Now,
	}
}

func (m *Mpesa) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// darajaPassword returns the Lipa Na M-Pesa password and its timestamp. The
// password is base64(shortcode + passkey + timestamp) with the timestamp in
// East Africa Time.
func (m *Mpesa) darajaPassword() (password, timestamp string) {
	timestamp = m.now().In(eat).Format(darajaTimestampLayout)
	raw := m.Shortcode + m.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

// NormalizePhone converts Kenyan MSISDN spellings to the 2547XXXXXXXX form
// Daraja requires. Accepted inputs: 07XXXXXXXX, 01XXXXXXXX, +2547XXXXXXXX,
// 2547XXXXXXXX and the bare 7XXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	s = strings.TrimPrefix(s, "+")
	switch {
	case len(s) == 10 && (strings.HasPrefix(s, "07") || strings.HasPrefix(s, "01")):
		s = "254" + s[1:]
	case len(s) == 9 && (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")):
		s = "254" + s
	}
	if len(s) != 12 || !strings.HasPrefix(s, "254") {
		return "", fmt.Errorf("mpesa: invalid phone number %q", phone)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("mpesa: invalid phone number %q", phone)
		}
	}
	return s, nil
}

// wholeShillings rounds to the nearest shilling; Daraja only accepts integer
// amounts.
func wholeShillings(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

func clamp(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (m *Mpesa) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != "" && m.now().Before(m.tokenExp) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.ConsumerKey, m.ConsumerSecret)
	resp, err := m.HTTP.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mpesa: token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa: token request status %s", resp.Status)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("mpesa: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("mpesa: empty access token")
	}
	ttl := 3600 * time.Second
	if secs, err := time.ParseDuration(tr.ExpiresIn + "s"); err == nil && secs > 0 {
		ttl = secs
	}
	m.mu.Lock()
	m.token = tr.AccessToken
	m.tokenExp = m.now().Add(ttl - 30*time.Second)
	m.mu.Unlock()
	return tr.AccessToken, nil
}

func (m *Mpesa) postJSON(ctx context.Context, path string, payload any, out any) error {
	token, err := m.accessToken(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := m.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("mpesa: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mpesa: %s status %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush initiates a Lipa Na M-Pesa Online push to the customer's handset.
func (m *Mpesa) STKPush(ctx context.Context, in STKRequest) (STKResponse, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return STKResponse{}, err
	}
	amount := wholeShillings(in.Amount)
	if amount <= 0 {
		return STKResponse{}, fmt.Errorf("mpesa: amount %s rounds to zero", in.Amount)
	}
	password, timestamp := m.darajaPassword()
	payload := map[string]any{
		"BusinessShortCode": m.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            m.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       m.CallbackURL,
		"AccountReference":  clamp(in.AccountReference, maxAccountRefLen),
		"TransactionDesc":   clamp(in.Description, maxDescriptionLen),
	}
	var resp stkPushResponse
	if err := m.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", payload, &resp); err != nil {
		return STKResponse{}, err
	}
	if resp.ResponseCode != "0" {
		return STKResponse{}, fmt.Errorf("%w: code %s: %s", ErrSTKRejected, resp.ResponseCode, resp.ResponseDescription)
	}
	return STKResponse{
		MerchantRequestID:   resp.MerchantRequestID,
		CheckoutRequestID:   resp.CheckoutRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}, nil
}

// QueryStatus asks Daraja for the outcome of a previously accepted push.
func (m *Mpesa) QueryStatus(ctx context.Context, checkoutRequestID string) (StatusResult, error) {
	password, timestamp := m.darajaPassword()
	payload := map[string]any{
		"BusinessShortCode": m.Shortcode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	var resp struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
	}
	if err := m.postJSON(ctx, "/mpesa/stkpushquery/v1/query", payload, &resp); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		ResponseCode: resp.ResponseCode,
		ResultCode:   resp.ResultCode,
		ResultDesc:   resp.ResultDesc,
	}, nil
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback extracts the push outcome from a Daraja callback payload.
func (m *Mpesa) ParseCallback(body []byte) (CallbackResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CallbackResult{}, fmt.Errorf("mpesa: decode callback: %w", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return CallbackResult{}, errors.New("mpesa: callback missing CheckoutRequestID")
	}
	out := CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		Payload:           body,
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			var f float64
			if err := json.Unmarshal(item.Value, &f); err == nil {
				out.Amount = decimal.NewFromFloat(f)
			}
		case "MpesaReceiptNumber":
			var s string
			if err := json.Unmarshal(item.Value, &s); err == nil {
				out.ReceiptNumber = s
			}
		case "PhoneNumber":
			// Daraja sends the MSISDN as a JSON number.
			var n json.Number
			if err := json.Unmarshal(item.Value, &n); err == nil {
				out.Phone = n.String()
			}
		}
	}
	return out, nil
}
