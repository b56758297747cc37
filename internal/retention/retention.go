// Package retention runs the scheduled tombstone sweep. A deletion
// tombstone only has to outlive the window in which a late copy of the
// deleted message could still arrive; after the configured TTL it is purged
// so the ledger does not accumulate one key per deleted message forever.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"peerchat/pkg/config"
	"peerchat/pkg/ledger"
	"peerchat/pkg/logger"
)

// defaultTTL keeps tombstones for thirty days when no TTL is configured.
const defaultTTL = 30 * 24 * time.Hour

var storedCfg *config.Config

// SetConfig stores the config so tests and admin triggers can invoke
// retention runs on demand.
func SetConfig(cfg config.Config) {
	storedCfg = &cfg
}

// RunImmediate triggers a single sweep using the stored config.
func RunImmediate() error {
	if storedCfg == nil {
		return fmt.Errorf("no config registered for retention run")
	}
	return runOnce(*storedCfg)
}

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.Config) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Retention.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Retention.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "ttl", ttlFor(cfg).String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

func ttlFor(cfg config.Config) time.Duration {
	if ttl := cfg.Retention.TombstoneTTL.Duration(); ttl > 0 {
		return ttl
	}
	return defaultTTL
}

func runOnce(cfg config.Config) error {
	cutoff := time.Now().UTC().Add(-ttlFor(cfg)).UnixMilli()
	tombs, err := ledger.PurgeTombstones(cutoff)
	if err != nil {
		return err
	}
	retracted, err := ledger.PurgeRetractedReactions(cutoff)
	if err != nil {
		return err
	}
	if logger.Audit != nil && tombs+retracted > 0 {
		logger.Audit.Info("retention_sweep", "tombstones", tombs, "retractions", retracted, "cutoff", cutoff)
	}
	return nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, cfg config.Config, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(cfg); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
