package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/metrics/counter"
)

// RawEvent is a webhook delivery as received on the wire.
type RawEvent struct {
	EventID        string
	EventType      string
	Payload        []byte
	SignatureValid bool
}

// Outcome reports what happened to a delivery. Err is recorded on the ledger
// row; the HTTP layer still acks so the gateway's redelivery backoff stays
// bounded. An unprocessed ledger row with an error is retried on redelivery.
type Outcome struct {
	Duplicate bool
	Ignored   bool
	Err       error
}

// webhookEnvelope is the gateway's event wrapper.
type webhookEnvelope struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// captureResource is the schema for PAYMENT.CAPTURE.COMPLETED.
type captureResource struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	// One-time orders carry the order id under supplementary data.
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// subscriptionResource is the schema for BILLING.SUBSCRIPTION.* events.
type subscriptionResource struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PlanID     string `json:"plan_id"`
	CustomID   string `json:"custom_id"`
	Subscriber struct {
		EmailAddress string `json:"email_address"`
	} `json:"subscriber"`
}

// Processor consumes gateway webhook deliveries: deduplicates them against
// the ledger and maps each known event kind to an entitlement mutation.
type Processor struct {
	repo  Repository
	store *Store
}

func NewProcessor(repo Repository, store *Store) *Processor {
	return &Processor{repo: repo, store: store}
}

// Handle runs the full webhook pipeline for one delivery. The returned error
// (as opposed to Outcome.Err) means the ledger insert itself failed and the
// caller should not ack, so the gateway redelivers.
func (p *Processor) Handle(ctx context.Context, raw RawEvent) (Outcome, error) {
	var env webhookEnvelope
	parseErr := json.Unmarshal(raw.Payload, &env)

	// The envelope id is stable across redeliveries; transport headers carry
	// a fresh transmission id per delivery attempt, so they only serve as a
	// fallback for envelopes without an id.
	eventID := strings.TrimSpace(env.ID)
	if eventID == "" {
		eventID = strings.TrimSpace(raw.EventID)
	}
	if eventID == "" {
		sum := sha256.Sum256(raw.Payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	eventType := strings.TrimSpace(raw.EventType)
	if eventType == "" {
		eventType = strings.TrimSpace(env.EventType)
	}

	created, stored, err := p.repo.CreateWebhookEventIfNotExists(&models.BillingWebhookEvent{
		GatewayEventID: eventID,
		EventType:      eventType,
		PayloadJSON:    string(raw.Payload),
		SignatureValid: raw.SignatureValid,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !created && stored.ProcessedAt != nil {
		// Redelivery of an already handled event.
		log.Debugf("[Webhook] duplicate event %s (%s): %v", eventID, eventType, ErrDuplicateEvent)
		counter.AddBillingEvent(counter.MetricWebhookDuplicate)
		return Outcome{Duplicate: true}, nil
	}

	if !raw.SignatureValid {
		sigErr := errors.New("invalid webhook signature")
		p.finish(stored.ID, sigErr)
		return Outcome{Err: sigErr}, nil
	}

	if parseErr != nil {
		p.finish(stored.ID, fmt.Errorf("malformed event envelope: %w", parseErr))
		return Outcome{Ignored: true, Err: parseErr}, nil
	}

	kind := ParseEventKind(eventType)
	var procErr error
	switch kind {
	case EventPaymentCaptureCompleted:
		procErr = p.handleCaptureCompleted(ctx, env.Resource)
	case EventSubscriptionActivated:
		procErr = p.handleSubscriptionActivated(ctx, env.Resource)
	case EventSubscriptionCancelled:
		procErr = p.handleSubscriptionStatus(ctx, env.Resource, models.MembershipStatusCancelled, false)
	case EventSubscriptionExpired:
		procErr = p.handleSubscriptionStatus(ctx, env.Resource, models.MembershipStatusExpired, true)
	case EventSubscriptionSuspended:
		procErr = p.handleSubscriptionStatus(ctx, env.Resource, models.MembershipStatusSuspended, false)
	case EventUnknown:
		p.finish(stored.ID, nil)
		counter.AddBillingEvent(counter.MetricWebhookIgnored)
		return Outcome{Ignored: true}, nil
	}

	p.finish(stored.ID, procErr)
	if procErr != nil {
		log.Errorf("[Webhook] processing event %s (%s) failed: %v", eventID, eventType, procErr)
		return Outcome{Err: procErr}, nil
	}

	counter.AddBillingEvent(counter.MetricWebhookProcessed)
	return Outcome{}, nil
}

// finish records the outcome on the ledger row. ProcessedAt is only set on
// success so a failed mutation is retried when the gateway redelivers.
func (p *Processor) finish(eventRowID uint, procErr error) {
	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
	}
	if err := p.repo.MarkWebhookProcessed(eventRowID, errMsg); err != nil {
		log.Errorf("[Webhook] marking event row %d failed: %v", eventRowID, err)
	}
}

func (p *Processor) handleCaptureCompleted(ctx context.Context, resource json.RawMessage) error {
	var res captureResource
	if err := json.Unmarshal(resource, &res); err != nil {
		return fmt.Errorf("malformed capture resource: %w", err)
	}

	orderID := res.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = res.ID
	}
	if orderID == "" {
		return errors.New("capture resource missing order id")
	}

	intent, _, err := p.repo.ConsumeIntent(orderID)
	if err == nil {
		// A consumed intent still activates: activation is idempotent for a
		// single purchase, and a retry after a failed first attempt must not
		// leave the payer un-upgraded.
		_, err := p.store.Activate(ctx, intent.UserID, intent.Plan, intent.BillingCycle, "")
		return err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// No stored intent: fall back to the correlation tag on the capture.
	userID, plan, cycle, tagErr := ParseCorrelationTag(res.CustomID)
	if tagErr != nil {
		return fmt.Errorf("capture without intent and unusable correlation tag: %w", tagErr)
	}
	_, err = p.store.Activate(ctx, userID, plan, cycle, "")
	return err
}

func (p *Processor) handleSubscriptionActivated(ctx context.Context, resource json.RawMessage) error {
	var res subscriptionResource
	if err := json.Unmarshal(resource, &res); err != nil {
		return fmt.Errorf("malformed subscription resource: %w", err)
	}
	if res.ID == "" {
		return errors.New("subscription resource missing id")
	}

	var (
		userID      uint
		plan, cycle string
	)

	if intent, _, err := p.repo.ConsumeIntent(res.ID); err == nil {
		userID, plan, cycle = intent.UserID, intent.Plan, intent.BillingCycle
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if userID == 0 {
		if id, p2, c2, err := ParseCorrelationTag(res.CustomID); err == nil {
			userID, plan, cycle = id, p2, c2
		}
	}
	if userID == 0 && res.Subscriber.EmailAddress != "" {
		user, err := p.repo.FindUserByEmail(res.Subscriber.EmailAddress)
		if err != nil {
			return fmt.Errorf("no local user for subscriber %s: %w", res.Subscriber.EmailAddress, err)
		}
		userID = user.ID
	}
	if userID == 0 {
		return errors.New("subscription activation could not be matched to a user")
	}
	if plan == "" || cycle == "" {
		return errors.New("subscription activation missing plan or cycle")
	}

	_, err := p.store.Activate(ctx, userID, plan, cycle, res.ID)
	return err
}

func (p *Processor) handleSubscriptionStatus(ctx context.Context, resource json.RawMessage, status string, downgrade bool) error {
	var res subscriptionResource
	if err := json.Unmarshal(resource, &res); err != nil {
		return fmt.Errorf("malformed subscription resource: %w", err)
	}
	if res.ID == "" {
		return errors.New("subscription resource missing id")
	}

	updated, err := p.store.SetStatusBySubscription(ctx, res.ID, status)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		// Nothing joined to this subscription locally; acked and dropped.
		log.Warnf("[Webhook] no membership for subscription %s (status %s)", res.ID, status)
		return nil
	}

	if downgrade {
		for _, m := range updated {
			if err := p.store.Downgrade(ctx, m.UserID); err != nil {
				return err
			}
		}
	}
	return nil
}
