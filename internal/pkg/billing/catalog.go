package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuelReschke/MemberFox/app/models"
	"gorm.io/gorm"
)

// CatalogConfig is the static price table, loaded once at startup and passed
// in explicitly. Keys are "plan_cycle", values are cents.
type CatalogConfig struct {
	Currency string
	Prices   map[string]int64
}

// DefaultCatalogConfig returns the built-in price table.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Currency: "USD",
		Prices: map[string]int64{
			"bronze_monthly": 2499,
			"bronze_annual":  24999,
			"silver_monthly": 4999,
			"silver_annual":  49999,
			"gold_monthly":   9999,
			"gold_annual":    99999,
		},
	}
}

// PlanCreator is the gateway subset the catalog needs to register a billing
// plan on first use.
type PlanCreator interface {
	CreateBillingPlan(ctx context.Context, token string, in CreatePlanRequest) (string, error)
}

// TokenProvider hands out a valid gateway access token.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// Catalog resolves prices and lazily provisions gateway billing plans,
// caching the (plan, cycle) -> gateway plan id mapping in the database so a
// plan is created at most once.
type Catalog struct {
	cfg     CatalogConfig
	repo    Repository
	gateway PlanCreator
	tokens  TokenProvider

	mu sync.Mutex
}

func NewCatalog(cfg CatalogConfig, repo Repository, gateway PlanCreator, tokens TokenProvider) *Catalog {
	return &Catalog{cfg: cfg, repo: repo, gateway: gateway, tokens: tokens}
}

func priceKey(plan, cycle string) string {
	return plan + "_" + cycle
}

// ResolvePrice returns the price in cents for a (plan, cycle) pair.
func (cat *Catalog) ResolvePrice(plan, cycle string) (int64, error) {
	cycle, ok := NormalizeCycle(cycle)
	if !ok {
		return 0, fmt.Errorf("%w: invalid billing cycle", ErrUnknownPlan)
	}
	price, ok := cat.cfg.Prices[priceKey(strings.ToLower(strings.TrimSpace(plan)), cycle)]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownPlan, plan, cycle)
	}
	return price, nil
}

func (cat *Catalog) Currency() string {
	if cat.cfg.Currency == "" {
		return "USD"
	}
	return cat.cfg.Currency
}

// EnsureBillingPlan returns the gateway plan id for a (plan, cycle) pair,
// creating the gateway-side plan on first use. Creation is serialized inside
// the process; the unique index on the mapping table catches races across
// processes.
func (cat *Catalog) EnsureBillingPlan(ctx context.Context, plan, cycle string) (string, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	cycle, ok := NormalizeCycle(cycle)
	if !ok {
		return "", fmt.Errorf("%w: invalid billing cycle", ErrUnknownPlan)
	}

	price, err := cat.ResolvePrice(plan, cycle)
	if err != nil {
		return "", err
	}

	if m, err := cat.repo.FindPlanMapping(plan, cycle); err == nil {
		return m.GatewayPlanID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	cat.mu.Lock()
	defer cat.mu.Unlock()

	// Re-check under the lock: a concurrent checkout may have created it.
	if m, err := cat.repo.FindPlanMapping(plan, cycle); err == nil {
		return m.GatewayPlanID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	token, err := cat.tokens.GetToken(ctx)
	if err != nil {
		return "", err
	}

	intervalUnit := "MONTH"
	if cycle == models.BillingCycleAnnual {
		intervalUnit = "YEAR"
	}

	gatewayPlanID, err := cat.gateway.CreateBillingPlan(ctx, token, CreatePlanRequest{
		Name:         fmt.Sprintf("memberfox-%s-%s", plan, cycle),
		Description:  fmt.Sprintf("MemberFox %s membership, billed %s", plan, cycle),
		IntervalUnit: intervalUnit,
		Amount:       FormatAmount(price),
		Currency:     cat.Currency(),
	})
	if err != nil {
		return "", err
	}

	if err := cat.repo.SavePlanMapping(&models.BillingPlanMapping{
		Plan:          plan,
		BillingCycle:  cycle,
		GatewayPlanID: gatewayPlanID,
		IsActive:      true,
	}); err != nil {
		return "", err
	}
	return gatewayPlanID, nil
}

// FormatAmount renders cents as the "12.34" string the gateway expects.
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
