// Package mpesa provides a client for the M-Pesa Daraja push-payment
// gateway.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hudumahub/huduma-system/internal/validation"
)

// ErrGatewayAuth is returned when the access-credential exchange fails.
// No push request is attempted in that case.
var ErrGatewayAuth = errors.New("mpesa gateway authentication failed")

// ErrNotConfigured is returned when the client has no credentials.
var ErrNotConfigured = errors.New("mpesa client not configured")

// Options carries the gateway credentials and endpoints.
type Options struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	CallbackURL    string
}

// Client encapsulates HTTP interaction with the payment gateway. The
// short-lived bearer token from the client-credential exchange is cached
// until shortly before its expiry.
type Client struct {
	opts       Options
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a gateway client for the given credentials.
func NewClient(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// Daraja reports the TTL as a string of seconds.
	ExpiresIn string `json:"expires_in"`
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	url := c.opts.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.opts.ConsumerKey + ":" + c.opts.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrGatewayAuth, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token: %s", ErrGatewayAuth, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrGatewayAuth)
	}

	ttl := 3600
	if v, convErr := strconv.Atoi(tok.ExpiresIn); convErr == nil && v > 0 {
		ttl = v
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(ttl)*time.Second - 30*time.Second)

	return c.accessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// StkPushResponse is the gateway's synchronous answer to a push request.
// ResponseCode "0" only confirms the push was dispatched to the payer's
// device, not that payment happened.
type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// Accepted reports whether the gateway accepted the push for dispatch.
func (r *StkPushResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

// FailureReason returns the gateway's explanation for a rejected push.
func (r *StkPushResponse) FailureReason() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return r.ResponseDescription
}

// InitiateSTKPush asks the gateway to prompt the payer's device. The
// msisdn must already be normalized to international form; the account
// reference is truncated to the gateway's 12-character limit.
func (c *Client) InitiateSTKPush(ctx context.Context, msisdn string, amount int64, accountRef string) (*StkPushResponse, error) {
	if c == nil || c.opts.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if !validation.IsValidMSISDN(msisdn) {
		return nil, validation.ErrInvalidPhoneNumber
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	if len(accountRef) > 12 {
		accountRef = accountRef[:12]
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(c.opts.Shortcode + c.opts.Passkey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: c.opts.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            msisdn,
		PartyB:            c.opts.Shortcode,
		PhoneNumber:       msisdn,
		CallBackURL:       c.opts.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   "Service Payment",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal push request: %w", err)
	}

	url := c.opts.BaseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do push request: %w", err)
	}
	defer resp.Body.Close()

	var result StkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	return &result, nil
}
