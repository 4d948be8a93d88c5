package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *PayPalClient {
	return &PayPalClient{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      ts.URL,
		ProductID:    "PROD-1",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func TestFetchAccessToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth2/token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "A21.token",
			"token_type":   "Bearer",
			"expires_in":   32400,
		})
	}))
	defer ts.Close()

	out, err := newTestClient(ts).FetchAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A21.token", out.AccessToken)
	assert.Equal(t, 32400, out.ExpiresIn)
}

func TestFetchAccessTokenMissingCredentials(t *testing.T) {
	c := &PayPalClient{HTTPClient: http.DefaultClient}
	_, err := c.FetchAccessToken(context.Background())
	assert.Error(t, err)
}

func TestCreateOrderParsesApprovalLink(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "CAPTURE", payload["intent"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": "ORDER-77",
			"status": "CREATED",
			"links": [
				{"href": "https://api.test/self", "rel": "self"},
				{"href": "https://gateway.test/approve", "rel": "approve"}
			]
		}`))
	}))
	defer ts.Close()

	order, err := newTestClient(ts).CreateOrder(context.Background(), "tok", CreateOrderRequest{
		Amount: "24.99", Currency: "USD", CustomID: "1:bronze:monthly",
		ReturnURL: "https://app.test/return", CancelURL: "https://app.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-77", order.ID)
	assert.Equal(t, "https://gateway.test/approve", order.ApprovalURL)
}

func TestCaptureOrderExtractsCustomID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/checkout/orders/ORDER-77/capture", r.URL.Path)
		w.Write([]byte(`{
			"id": "ORDER-77",
			"status": "COMPLETED",
			"purchase_units": [
				{"payments": {"captures": [{"custom_id": "1:bronze:monthly"}]}}
			]
		}`))
	}))
	defer ts.Close()

	capture, err := newTestClient(ts).CaptureOrder(context.Background(), "tok", "ORDER-77")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", capture.Status)
	assert.Equal(t, "1:bronze:monthly", capture.CustomID)
}

func TestGatewayRejectionWrapsStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).CaptureOrder(context.Background(), "tok", "ORDER-77")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGatewayRejected)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
}

func TestGatewayOutageWrapsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused from here on

	_, err := newTestClient(ts).CaptureOrder(context.Background(), "tok", "ORDER-77")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestServerErrorWrapsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).CaptureOrder(context.Background(), "tok", "ORDER-77")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateBillingPlan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing/plans", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "PROD-1", payload["product_id"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "P-5ML4271244454362WXNWU5NQ", "status": "ACTIVE"}`))
	}))
	defer ts.Close()

	id, err := newTestClient(ts).CreateBillingPlan(context.Background(), "tok", CreatePlanRequest{
		Name: "memberfox-silver-monthly", IntervalUnit: "MONTH", Amount: "49.99", Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "P-5ML4271244454362WXNWU5NQ", id)
}

func TestCreateSubscription(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing/subscriptions", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": "I-BW452GLLEP1G",
			"status": "APPROVAL_PENDING",
			"plan_id": "P-5ML4271244454362WXNWU5NQ",
			"links": [{"href": "https://gateway.test/subscribe", "rel": "approve"}]
		}`))
	}))
	defer ts.Close()

	sub, err := newTestClient(ts).CreateSubscription(context.Background(), "tok", CreateSubscriptionRequest{
		PlanID: "P-5ML4271244454362WXNWU5NQ", CustomID: "2:silver:monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, "I-BW452GLLEP1G", sub.ID)
	assert.Equal(t, "https://gateway.test/subscribe", sub.ApprovalURL)
}

func TestCancelSubscription(t *testing.T) {
	var gotReason string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing/subscriptions/I-BW452GLLEP1G/cancel", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotReason = payload["reason"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	err := newTestClient(ts).CancelSubscription(context.Background(), "tok", "I-BW452GLLEP1G", "")
	require.NoError(t, err)
	assert.Equal(t, "cancelled by user", gotReason)
}
