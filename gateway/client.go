package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
)

// Client talks to the card processor's payment-intent API. It implements
// services.CardGateway. Amounts go over the wire in minor units (pence).
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// transientError marks a network or server-side failure that the caller
// should retry; it is never a statement about the payment itself. A 4xx
// answer is definitive and comes back as a plain error instead.
type transientError struct {
	status int
	body   string
	err    error
}

func (e *transientError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("gateway request: %v", e.err)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.status, e.body)
}

func (e *transientError) Unwrap() error { return e.err }

// Transient reports that retrying the same call may succeed. Reconciliation
// checks for this method to decide whether to ask the processor to redeliver.
func (e *transientError) Transient() bool { return true }

func NewClientFromEnv() (*Client, error) {
	secretKey := strings.TrimSpace(os.Getenv("CARD_GATEWAY_SECRET_KEY"))
	if secretKey == "" {
		return nil, fmt.Errorf("CARD_GATEWAY_SECRET_KEY is not set")
	}
	baseURL := strings.TrimSpace(os.Getenv("CARD_GATEWAY_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent registers a payment intent for the given amount and returns the
// intent id plus the client secret the frontend needs to collect the card.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (string, string, error) {
	form := url.Values{}
	form.Set("amount", amount.Mul(decimal.NewFromInt(100)).Truncate(0).String())
	form.Set("currency", strings.ToLower(currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}

	var intent intentResponse
	if err := json.Unmarshal(body, &intent); err != nil {
		return "", "", fmt.Errorf("decode intent response: %w", err)
	}
	if intent.Error != nil {
		return "", "", fmt.Errorf("gateway rejected intent: %s", intent.Error.Message)
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return "", "", fmt.Errorf("gateway returned incomplete intent")
	}
	return intent.ID, intent.ClientSecret, nil
}

// GetIntentStatus fetches the authoritative state of an intent. The raw body
// is returned alongside so reconciliation can archive it on the audit trail.
func (c *Client) GetIntentStatus(ctx context.Context, intentID string) (services.IntentStatus, string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil)
	if err != nil {
		return "", "", err
	}

	var intent intentResponse
	if err := json.Unmarshal(body, &intent); err != nil {
		return "", "", fmt.Errorf("decode intent response: %w", err)
	}
	if intent.Error != nil {
		return "", "", fmt.Errorf("gateway error for intent %s: %s", intentID, intent.Error.Message)
	}

	return mapIntentStatus(intent), string(body), nil
}

func mapIntentStatus(intent intentResponse) services.IntentStatus {
	switch intent.Status {
	case "succeeded":
		return services.IntentSucceeded
	case "processing":
		return services.IntentProcessing
	case "canceled":
		return services.IntentFailed
	case "requires_payment_method":
		if intent.LastPaymentError != nil {
			return services.IntentFailed
		}
		return services.IntentRequiresAction
	default: // requires_action, requires_confirmation, requires_capture
		return services.IntentRequiresAction
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, &transientError{status: resp.StatusCode, body: truncate(string(respBody), 256)}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(string(respBody), 256))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
