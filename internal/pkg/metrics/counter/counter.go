package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/cache"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
)

const billingEventsKey = "billing:counters:events"

// Billing counter metrics. Incremented in Redis on the hot path, flushed to
// the billing_event_stats table in batches.
const (
	MetricOrderCreated                = "order_created"
	MetricOrderCreateFailed           = "order_create_failed"
	MetricCaptureCompleted            = "capture_completed"
	MetricCaptureFailed               = "capture_failed"
	MetricSubscribeCreated            = "subscribe_created"
	MetricSubscribeFailed             = "subscribe_failed"
	MetricSubscriptionCancelRequested = "subscription_cancel_requested"
	MetricWebhookProcessed            = "webhook_processed"
	MetricWebhookDuplicate            = "webhook_duplicate"
	MetricWebhookIgnored              = "webhook_ignored"
	MetricMembershipExpired           = "membership_expired"
	MetricMembershipDowngraded        = "membership_downgraded"
)

// AddBillingEvent increments the pending counter for a metric in Redis.
// Counting is best effort and never blocks the billing path.
func AddBillingEvent(metric string) {
	ctx := context.Background()
	if err := cache.GetClient().HIncrBy(ctx, billingEventsKey, metric, 1).Err(); err != nil {
		log.Debugf("[Counter] increment %s failed: %v", metric, err)
	}
}

// FlushAll drains the pending counters into the database.
func FlushAll() error {
	return flushHashToStats(billingEventsKey)
}

// flushHashToStats drains the Redis hash atomically and applies batched
// increments. RENAME to a temporary key keeps in-flight increments safe.
func flushHashToStats(redisKey string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// Nothing to flush when the key does not exist.
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	entries, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	db := database.GetDB()
	for metric, raw := range entries {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n == 0 {
			continue
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "metric"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + ?", n)}),
		}).Create(&models.BillingEventStat{Metric: metric, Count: n}).Error
		if err != nil {
			log.Errorf("[Counter] flushing metric %s failed: %v", metric, err)
		}
	}

	return rdb.Del(ctx, tmpKey).Err()
}

// StartFlusher periodically flushes counters until the process exits.
func StartFlusher(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := FlushAll(); err != nil {
				log.Errorf("[Counter] flush failed: %v", err)
			}
		}
	}()
}
