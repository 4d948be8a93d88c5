package billing

import (
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
)

// tokenCache is shared across all requests: it is the one piece of mutable
// state that must not be rebuilt per request, or the coalesced refresh would
// be meaningless.
var (
	tokenCacheOnce sync.Once
	tokenCache     *TokenCache
)

func DefaultTokenCache() *TokenCache {
	tokenCacheOnce.Do(func() {
		tokenCache = NewTokenCache(NewPayPalClientFromEnv(), defaultTokenSafetyMargin)
	})
	return tokenCache
}

// NewOrchestratorFromEnv wires an orchestrator against the live database and
// the shared token cache, with URLs from the environment.
func NewOrchestratorFromEnv() *Orchestrator {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:"+env.GetEnv("APP_PORT", "4000")), "/")
	repo := NewRepository(database.GetDB())
	gateway := NewPayPalClientFromEnv()
	tokens := DefaultTokenCache()
	catalog := NewCatalog(DefaultCatalogConfig(), repo, gateway, tokens)
	store := NewStore(repo)
	return NewOrchestrator(
		gateway,
		tokens,
		catalog,
		store,
		repo,
		base+"/checkout/return",
		base+"/checkout/cancelled",
	)
}

// NewProcessorFromEnv wires the webhook processor against the live database.
func NewProcessorFromEnv() *Processor {
	repo := NewRepository(database.GetDB())
	return NewProcessor(repo, NewStore(repo))
}

// NewSweeperFromEnv wires the reconciliation sweeper with the configured
// interval.
func NewSweeperFromEnv() *Sweeper {
	interval := defaultSweepInterval
	if v := env.GetEnv("MEMBERSHIP_SWEEP_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}
	repo := NewRepository(database.GetDB())
	return NewSweeper(NewStore(repo), repo, interval)
}
