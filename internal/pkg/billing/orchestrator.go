package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/mail"
	"github.com/ManuelReschke/MemberFox/internal/pkg/metrics/counter"
)

// Gateway is the payment gateway surface the orchestrator consumes.
type Gateway interface {
	PlanCreator
	CreateOrder(ctx context.Context, token string, in CreateOrderRequest) (*OrderResponse, error)
	CaptureOrder(ctx context.Context, token, orderID string) (*CaptureResponse, error)
	CreateSubscription(ctx context.Context, token string, in CreateSubscriptionRequest) (*SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, token, subscriptionID, reason string) error
	GetSubscription(ctx context.Context, token, subscriptionID string) (*SubscriptionResponse, error)
}

// Orchestrator drives checkout: it creates orders and subscriptions against
// the gateway, stores the pending purchase intent, and performs the capture
// step. Entitlement is only ever granted after a fully verified gateway
// response; no failure path mutates the membership.
type Orchestrator struct {
	gateway Gateway
	tokens  TokenProvider
	catalog *Catalog
	store   *Store
	repo    Repository

	ReturnURL string
	CancelURL string
}

func NewOrchestrator(gateway Gateway, tokens TokenProvider, catalog *Catalog, store *Store, repo Repository, returnURL, cancelURL string) *Orchestrator {
	return &Orchestrator{
		gateway:   gateway,
		tokens:    tokens,
		catalog:   catalog,
		store:     store,
		repo:      repo,
		ReturnURL: returnURL,
		CancelURL: cancelURL,
	}
}

// CreateOrder builds a one-time order for a (plan, cycle) pair and persists
// the pending intent keyed by the gateway order id. The user is redirected to
// the returned approval URL.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID uint, plan, cycle string) (*CheckoutRedirect, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	cycle, ok := NormalizeCycle(cycle)
	if !ok {
		return nil, fmt.Errorf("%w: invalid billing cycle", ErrUnknownPlan)
	}

	price, err := o.catalog.ResolvePrice(plan, cycle)
	if err != nil {
		return nil, err
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	order, err := o.gateway.CreateOrder(ctx, token, CreateOrderRequest{
		Amount:      FormatAmount(price),
		Currency:    o.catalog.Currency(),
		Description: fmt.Sprintf("MemberFox %s membership (%s)", plan, cycle),
		CustomID:    CorrelationTag(userID, plan, cycle),
		ReturnURL:   o.ReturnURL,
		CancelURL:   o.CancelURL,
	})
	if err != nil {
		counter.AddBillingEvent(counter.MetricOrderCreateFailed)
		return nil, err
	}

	if err := o.repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef:   order.ID,
		PurchaseType: models.PurchaseTypeOrder,
		UserID:       userID,
		Plan:         plan,
		BillingCycle: cycle,
	}); err != nil {
		return nil, err
	}

	counter.AddBillingEvent(counter.MetricOrderCreated)
	return &CheckoutRedirect{GatewayRef: order.ID, ApprovalURL: order.ApprovalURL}, nil
}

// CaptureOrder finalizes a one-time payment after user approval. On a
// COMPLETED capture it consumes the matching intent and activates the
// membership. An intent already consumed by the webhook path makes the
// capture a no-op success; a missing intent is ErrIntentNotFound.
func (o *Orchestrator) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	capture, err := o.gateway.CaptureOrder(ctx, token, orderID)
	if err != nil {
		counter.AddBillingEvent(counter.MetricCaptureFailed)
		return nil, err
	}
	if capture.Status != "COMPLETED" {
		counter.AddBillingEvent(counter.MetricCaptureFailed)
		return nil, fmt.Errorf("order capture returned status %s: %w", capture.Status, ErrGatewayRejected)
	}

	intent, alreadyConsumed, err := o.repo.ConsumeIntent(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrIntentNotFound, orderID)
		}
		return nil, err
	}
	if alreadyConsumed {
		// The webhook won the race; entitlement is already handled.
		m, _ := o.repo.FindMembershipByUser(intent.UserID)
		return &CaptureResult{OrderID: orderID, Status: capture.Status, AlreadyProcessed: true, Membership: m}, nil
	}

	m, err := o.store.Activate(ctx, intent.UserID, intent.Plan, intent.BillingCycle, "")
	if err != nil {
		return nil, err
	}

	counter.AddBillingEvent(counter.MetricCaptureCompleted)
	o.notifyActivation(intent.UserID, intent.Plan)
	return &CaptureResult{OrderID: orderID, Status: capture.Status, Membership: m}, nil
}

// CreateSubscription submits a recurring subscription against the lazily
// provisioned gateway billing plan. Activation happens exclusively via the
// webhook path; the gateway does not confirm subscription approval
// synchronously the way it does order capture.
func (o *Orchestrator) CreateSubscription(ctx context.Context, userID uint, email, plan, cycle string) (*CheckoutRedirect, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	cycle, ok := NormalizeCycle(cycle)
	if !ok {
		return nil, fmt.Errorf("%w: invalid billing cycle", ErrUnknownPlan)
	}

	gatewayPlanID, err := o.catalog.EnsureBillingPlan(ctx, plan, cycle)
	if err != nil {
		return nil, err
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := o.gateway.CreateSubscription(ctx, token, CreateSubscriptionRequest{
		PlanID:          gatewayPlanID,
		CustomID:        CorrelationTag(userID, plan, cycle),
		SubscriberEmail: email,
		ReturnURL:       o.ReturnURL,
		CancelURL:       o.CancelURL,
	})
	if err != nil {
		counter.AddBillingEvent(counter.MetricSubscribeFailed)
		return nil, err
	}

	if err := o.repo.CreateIntent(&models.PurchaseIntent{
		GatewayRef:   sub.ID,
		PurchaseType: models.PurchaseTypeSubscription,
		UserID:       userID,
		Plan:         plan,
		BillingCycle: cycle,
	}); err != nil {
		return nil, err
	}

	counter.AddBillingEvent(counter.MetricSubscribeCreated)
	return &CheckoutRedirect{GatewayRef: sub.ID, ApprovalURL: sub.ApprovalURL}, nil
}

// CancelSubscription tells the gateway to stop billing. The membership status
// stays untouched here: the cancellation webhook is the single writer for
// status transitions.
func (o *Orchestrator) CancelSubscription(ctx context.Context, gatewaySubscriptionID string) error {
	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return err
	}
	if err := o.gateway.CancelSubscription(ctx, token, gatewaySubscriptionID, "cancelled by user"); err != nil {
		return err
	}
	counter.AddBillingEvent(counter.MetricSubscriptionCancelRequested)
	return nil
}

func (o *Orchestrator) notifyActivation(userID uint, plan string) {
	user, err := o.repo.FindUserByID(userID)
	if err != nil {
		return
	}
	go func() {
		subject := "Deine MemberFox Mitgliedschaft ist aktiv"
		body := fmt.Sprintf("<p>Hallo %s,</p><p>deine <b>%s</b>-Mitgliedschaft ist ab sofort aktiv. Viel Spaß!</p>", user.Name, plan)
		if err := mail.SendMail(user.Email, subject, body); err != nil {
			log.Errorf("[Billing] activation mail to user %d failed: %v", userID, err)
		}
	}()
}
