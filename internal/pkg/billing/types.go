package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/MemberFox/app/models"
)

// EventKind is the closed set of gateway webhook event types the processor
// dispatches on. Anything else maps to EventUnknown and is acked unchanged.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPaymentCaptureCompleted
	EventSubscriptionActivated
	EventSubscriptionCancelled
	EventSubscriptionExpired
	EventSubscriptionSuspended
)

const (
	eventTypeCaptureCompleted      = "PAYMENT.CAPTURE.COMPLETED"
	eventTypeSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	eventTypeSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	eventTypeSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	eventTypeSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
)

func ParseEventKind(eventType string) EventKind {
	switch strings.ToUpper(strings.TrimSpace(eventType)) {
	case eventTypeCaptureCompleted:
		return EventPaymentCaptureCompleted
	case eventTypeSubscriptionActivated:
		return EventSubscriptionActivated
	case eventTypeSubscriptionCancelled:
		return EventSubscriptionCancelled
	case eventTypeSubscriptionExpired:
		return EventSubscriptionExpired
	case eventTypeSubscriptionSuspended:
		return EventSubscriptionSuspended
	default:
		return EventUnknown
	}
}

// NormalizeCycle maps user input onto the two supported billing cycles.
func NormalizeCycle(cycle string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(cycle)) {
	case models.BillingCycleMonthly, "month":
		return models.BillingCycleMonthly, true
	case models.BillingCycleAnnual, "year", "yearly":
		return models.BillingCycleAnnual, true
	default:
		return "", false
	}
}

// NormalizePlan maps input onto the purchasable plans. Correlation tags and
// intent rows both pass through here before any entitlement is written, so a
// garbled or forged plan never reaches the membership table.
func NormalizePlan(plan string) (string, bool) {
	switch p := strings.ToLower(strings.TrimSpace(plan)); p {
	case "bronze", "silver", "gold":
		return p, true
	default:
		return "", false
	}
}

// CorrelationTag is the opaque "userID:plan:cycle" string attached to gateway
// resources so webhook deliveries can be traced back to a checkout.
func CorrelationTag(userID uint, plan, cycle string) string {
	return fmt.Sprintf("%d:%s:%s", userID, plan, cycle)
}

func ParseCorrelationTag(tag string) (uint, string, string, error) {
	parts := strings.Split(strings.TrimSpace(tag), ":")
	if len(parts) != 3 {
		return 0, "", "", errors.New("malformed correlation tag")
	}
	id, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || id == 0 {
		return 0, "", "", errors.New("correlation tag has invalid user id")
	}
	cycle, ok := NormalizeCycle(parts[2])
	if !ok {
		return 0, "", "", errors.New("correlation tag has invalid billing cycle")
	}
	plan, ok := NormalizePlan(parts[1])
	if !ok {
		return 0, "", "", errors.New("correlation tag has unknown plan")
	}
	return uint(id), plan, cycle, nil
}

// CheckoutRedirect is returned by order and subscription creation: the
// gateway reference to track and the approval URL the user is sent to.
type CheckoutRedirect struct {
	GatewayRef  string
	ApprovalURL string
}

// CaptureResult reports the outcome of an order capture. AlreadyProcessed is
// set when the matching intent was consumed earlier (usually by a webhook)
// and the capture became a no-op success.
type CaptureResult struct {
	OrderID          string
	Status           string
	AlreadyProcessed bool
	Membership       *models.Membership
}
