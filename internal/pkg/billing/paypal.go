package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
)

const defaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

// PayPalClient talks to the PayPal REST API: token exchange, one-time orders
// with synchronous capture, billing plans and recurring subscriptions.
type PayPalClient struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	ProductID    string

	HTTPClient *http.Client
}

type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type CreateOrderRequest struct {
	Amount      string
	Currency    string
	Description string
	CustomID    string
	ReturnURL   string
	CancelURL   string
}

type OrderResponse struct {
	ID          string
	Status      string
	ApprovalURL string
}

type CaptureResponse struct {
	ID       string
	Status   string
	CustomID string
}

type CreatePlanRequest struct {
	Name         string
	Description  string
	IntervalUnit string // MONTH or YEAR
	Amount       string
	Currency     string
}

type CreateSubscriptionRequest struct {
	PlanID          string
	CustomID        string
	SubscriberEmail string
	ReturnURL       string
	CancelURL       string
}

type SubscriptionResponse struct {
	ID              string
	Status          string
	PlanID          string
	SubscriberEmail string
	ApprovalURL     string
}

func NewPayPalClientFromEnv() *PayPalClient {
	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		BaseURL:      strings.TrimRight(env.GetEnv("PAYPAL_BASE_URL", defaultPayPalBaseURL), "/"),
		ProductID:    strings.TrimSpace(env.GetEnv("PAYPAL_PRODUCT_ID", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchAccessToken performs the client-credentials exchange. Callers go
// through the TokenCache instead of calling this directly.
func (c *PayPalClient) FetchAccessToken(ctx context.Context) (*AccessTokenResponse, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var out AccessTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token exchange returned empty access_token")
	}
	return &out, nil
}

func (c *PayPalClient) CreateOrder(ctx context.Context, token string, in CreateOrderRequest) (*OrderResponse, error) {
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"description": in.Description,
				"custom_id":   in.CustomID,
				"amount": map[string]string{
					"currency_code": in.Currency,
					"value":         in.Amount,
				},
			},
		},
		"application_context": map[string]string{
			"return_url": in.ReturnURL,
			"cancel_url": in.CancelURL,
		},
	}

	body, err := c.postJSON(ctx, token, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Links  []link `json:"links"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed order response: %w", err)
	}
	if raw.ID == "" {
		return nil, errors.New("order create response missing id")
	}
	return &OrderResponse{
		ID:          raw.ID,
		Status:      raw.Status,
		ApprovalURL: findLink(raw.Links, "approve"),
	}, nil
}

func (c *PayPalClient) CaptureOrder(ctx context.Context, token, orderID string) (*CaptureResponse, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("order id is required")
	}

	body, err := c.postJSON(ctx, token, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					CustomID string `json:"custom_id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed capture response: %w", err)
	}

	out := &CaptureResponse{ID: raw.ID, Status: raw.Status}
	for _, pu := range raw.PurchaseUnits {
		for _, cap := range pu.Payments.Captures {
			if cap.CustomID != "" {
				out.CustomID = cap.CustomID
				break
			}
		}
	}
	return out, nil
}

// CreateBillingPlan registers a fixed-price recurring plan: indefinite total
// cycles, auto-bill on failure, no setup fee. The gateway does not dedupe
// plans by content, so callers cache the returned id locally.
func (c *PayPalClient) CreateBillingPlan(ctx context.Context, token string, in CreatePlanRequest) (string, error) {
	if c.ProductID == "" {
		return "", errors.New("PAYPAL_PRODUCT_ID is not configured")
	}

	payload := map[string]interface{}{
		"product_id":  c.ProductID,
		"name":        in.Name,
		"description": in.Description,
		"status":      "ACTIVE",
		"billing_cycles": []map[string]interface{}{
			{
				"frequency": map[string]interface{}{
					"interval_unit":  in.IntervalUnit,
					"interval_count": 1,
				},
				"tenure_type":  "REGULAR",
				"sequence":     1,
				"total_cycles": 0,
				"pricing_scheme": map[string]interface{}{
					"fixed_price": map[string]string{
						"currency_code": in.Currency,
						"value":         in.Amount,
					},
				},
			},
		},
		"payment_preferences": map[string]interface{}{
			"auto_bill_outstanding": true,
			"setup_fee": map[string]string{
				"currency_code": in.Currency,
				"value":         "0",
			},
			"payment_failure_threshold": 3,
		},
	}

	body, err := c.postJSON(ctx, token, "/v1/billing/plans", payload)
	if err != nil {
		return "", err
	}

	var raw struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("malformed plan response: %w", err)
	}
	if raw.ID == "" {
		return "", errors.New("plan create response missing id")
	}
	return raw.ID, nil
}

func (c *PayPalClient) CreateSubscription(ctx context.Context, token string, in CreateSubscriptionRequest) (*SubscriptionResponse, error) {
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, errors.New("plan id is required")
	}

	payload := map[string]interface{}{
		"plan_id":   in.PlanID,
		"custom_id": in.CustomID,
		"subscriber": map[string]interface{}{
			"email_address": in.SubscriberEmail,
		},
		"application_context": map[string]string{
			"return_url": in.ReturnURL,
			"cancel_url": in.CancelURL,
		},
	}

	body, err := c.postJSON(ctx, token, "/v1/billing/subscriptions", payload)
	if err != nil {
		return nil, err
	}
	return parseSubscriptionResponse(body)
}

// CancelSubscription asks the gateway to stop billing. The local status
// transition still comes from the subsequent webhook so status has a single
// writer.
func (c *PayPalClient) CancelSubscription(ctx context.Context, token, subscriptionID, reason string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return errors.New("subscription id is required")
	}
	if reason == "" {
		reason = "cancelled by user"
	}

	_, err := c.postJSON(ctx, token, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID)+"/cancel", map[string]string{"reason": reason})
	return err
}

func (c *PayPalClient) GetSubscription(ctx context.Context, token, subscriptionID string) (*SubscriptionResponse, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, errors.New("subscription id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/billing/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return parseSubscriptionResponse(body)
}

func (c *PayPalClient) postJSON(ctx context.Context, token, path string, payload interface{}) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *PayPalClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func findLink(links []link, rel string) string {
	for _, l := range links {
		if strings.EqualFold(l.Rel, rel) {
			return l.Href
		}
	}
	return ""
}

func parseSubscriptionResponse(body []byte) (*SubscriptionResponse, error) {
	var raw struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		PlanID     string `json:"plan_id"`
		Subscriber struct {
			EmailAddress string `json:"email_address"`
		} `json:"subscriber"`
		Links []link `json:"links"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed subscription response: %w", err)
	}
	if raw.ID == "" {
		return nil, errors.New("subscription response missing id")
	}
	return &SubscriptionResponse{
		ID:              raw.ID,
		Status:          raw.Status,
		PlanID:          raw.PlanID,
		SubscriberEmail: raw.Subscriber.EmailAddress,
		ApprovalURL:     findLink(raw.Links, "approve"),
	}, nil
}
