package entitlements

import (
	"strings"

	"github.com/ManuelReschke/MemberFox/app/models"
)

type Tier string

const (
	TierFree   Tier = "free"
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// DenialReason explains why access to gated content was refused. Callers use
// it to decide between a login redirect and an upgrade redirect.
type DenialReason string

const (
	DenialNone                  DenialReason = ""
	DenialNotLoggedIn           DenialReason = "not_logged_in"
	DenialInsufficientTier      DenialReason = "insufficient_tier"
	DenialSubscriptionSuspended DenialReason = "subscription_suspended"
)

// Decision is the result of a tier gate check.
type Decision struct {
	Allowed bool
	Reason  DenialReason
}

func NormalizeTier(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierBronze):
		return TierBronze
	case string(TierSilver):
		return TierSilver
	case string(TierGold):
		return TierGold
	default:
		return TierFree
	}
}

func TierRank(tier Tier) int {
	switch tier {
	case TierGold:
		return 3
	case TierSilver:
		return 2
	case TierBronze:
		return 1
	default:
		return 0
	}
}

// Check gates access to content that requires the given tier. A membership at
// a sufficient tier still fails the gate unless its status is active: a
// suspended or expired record must not grant access while the asynchronous
// downgrade is pending.
func Check(loggedIn bool, m *models.Membership, required Tier) Decision {
	if !loggedIn {
		return Decision{Allowed: false, Reason: DenialNotLoggedIn}
	}

	tier := TierFree
	status := models.MembershipStatusNone
	if m != nil {
		tier = NormalizeTier(m.Tier)
		status = strings.ToLower(strings.TrimSpace(m.Status))
	}

	if TierRank(tier) < TierRank(NormalizeTier(string(required))) {
		return Decision{Allowed: false, Reason: DenialInsufficientTier}
	}
	if required != TierFree && status != models.MembershipStatusActive {
		if status == models.MembershipStatusSuspended {
			return Decision{Allowed: false, Reason: DenialSubscriptionSuspended}
		}
		return Decision{Allowed: false, Reason: DenialInsufficientTier}
	}
	return Decision{Allowed: true}
}

// IsAllowed is the boolean shortcut used by templates and middleware.
func IsAllowed(loggedIn bool, m *models.Membership, required Tier) bool {
	return Check(loggedIn, m, required).Allowed
}
