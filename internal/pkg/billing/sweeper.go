package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MemberFox/internal/pkg/metrics/counter"
)

const (
	defaultSweepInterval = 10 * time.Minute
	maxSweepBatch        = 200
)

// Sweeper is the reconciliation loop behind the "eventually downgrade"
// invariant: active memberships past their expiry are marked expired, and
// expired or run-out cancelled memberships are downgraded to free. Status
// transitions from webhooks land immediately; this loop only catches what
// the asynchronous channel missed.
type Sweeper struct {
	store    *Store
	repo     Repository
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(store *Store, repo Repository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		repo:     repo,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.RunSweepOnce(context.Background()); err != nil {
					log.Errorf("[Sweeper] membership sweep failed: %v", err)
				}
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunSweepOnce performs one pass over overdue memberships.
func (s *Sweeper) RunSweepOnce(ctx context.Context) error {
	now := time.Now()

	expired, err := s.repo.ListExpiredActiveMemberships(now, maxSweepBatch)
	if err != nil {
		return err
	}
	for _, m := range expired {
		if _, err := s.store.Expire(ctx, m.UserID); err != nil {
			log.Errorf("[Sweeper] expiring membership of user %d failed: %v", m.UserID, err)
			continue
		}
		counter.AddBillingEvent(counter.MetricMembershipExpired)
	}

	candidates, err := s.repo.ListDowngradeCandidates(now, maxSweepBatch)
	if err != nil {
		return err
	}
	for _, m := range candidates {
		if err := s.store.Downgrade(ctx, m.UserID); err != nil {
			log.Errorf("[Sweeper] downgrading user %d failed: %v", m.UserID, err)
			continue
		}
		counter.AddBillingEvent(counter.MetricMembershipDowngraded)
	}

	if len(expired) > 0 || len(candidates) > 0 {
		log.Infof("[Sweeper] sweep done: %d expired, %d downgraded", len(expired), len(candidates))
	}
	return nil
}
