package cronrunner

import (
	"context"

	"go.uber.org/zap"

	"memewars/internal/config"
	"memewars/internal/service"
)

type BattleJobs interface {
	RetryYieldForwards(ctx context.Context, limit int) (int, error)
	SettleEnded(ctx context.Context, limit int) (int, error)
}

type Switches interface {
	IsEnabled(ctx context.Context, key string, fallback bool) bool
}

// RegisterBattleJobs schedules the yield forward retry and the settlement
// keeper. An empty schedule leaves that job off.
func RegisterBattleJobs(r *Runner, cfg config.CronConfig, jobs BattleJobs, switches Switches, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.YieldRetry != "" {
		if _, err := r.Add("yield_retry", cfg.YieldRetry, retryJob(jobs, switches, logger)); err != nil {
			return err
		}
	}
	if cfg.Keeper != "" {
		if _, err := r.Add("settle_keeper", cfg.Keeper, keeperJob(jobs, switches, logger)); err != nil {
			return err
		}
	}
	return nil
}

func retryJob(jobs BattleJobs, switches Switches, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if !switches.IsEnabled(ctx, service.FeatureYieldForwarding, true) {
			return nil
		}
		n, err := jobs.RetryYieldForwards(ctx, 0)
		if n > 0 {
			logger.Info("yield forwards delegated", zap.Int("count", n))
		}
		return err
	}
}

func keeperJob(jobs BattleJobs, switches Switches, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		if !switches.IsEnabled(ctx, service.FeatureSettleKeeper, true) {
			return nil
		}
		n, err := jobs.SettleEnded(ctx, 0)
		if n > 0 {
			logger.Info("keeper settled battles", zap.Int("count", n))
		}
		return err
	}
}
