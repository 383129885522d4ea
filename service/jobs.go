package service

import (
	"fmt"

	"github.com/chaos-io/rembg/config"
	"github.com/chaos-io/rembg/segment"
	"github.com/chaos-io/rembg/util"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NewScheduler registers the maintenance jobs for seg. Jobs whose interface
// the backend does not implement are skipped. The caller starts and stops
// the returned scheduler.
func NewScheduler(cfg config.JobsConfig, seg segment.Segmenter) (*cron.Cron, error) {
	c := cron.New()

	if m, ok := seg.(segment.Maintainer); ok && cfg.PoolCheck != "" {
		if _, err := c.AddFunc(cfg.PoolCheck, func() { maintain(m) }); err != nil {
			return nil, fmt.Errorf("schedule pool check %q: %w", cfg.PoolCheck, err)
		}
	}

	if i, ok := seg.(segment.Inspector); ok && cfg.Stats != "" {
		if _, err := c.AddFunc(cfg.Stats, func() { logStats(i) }); err != nil {
			return nil, fmt.Errorf("schedule stats %q: %w", cfg.Stats, err)
		}
	}

	return c, nil
}

func maintain(m segment.Maintainer) {
	created, err := m.Maintain()
	if err != nil {
		util.Logger.Warn("pool check failed", zap.Int("created", created), zap.Error(err))
		return
	}
	if created > 0 {
		util.Logger.Info("pool replenished", zap.Int("created", created))
	}
}

func logStats(i segment.Inspector) {
	s := i.Stats()
	fields := []zap.Field{
		zap.String("backend", s.Backend),
		zap.String("device", s.Device),
	}
	if s.Pool != nil {
		fields = append(fields,
			zap.Int("available", s.Pool.Available),
			zap.Int("in_use", s.Pool.InUse),
			zap.Int64("total_acquired", s.Pool.TotalAcquired),
			zap.Int64("acquire_failures", s.Pool.AcquireFailures),
			zap.Int64("discarded", s.Pool.Discarded),
			zap.Duration("wait_time", s.Pool.WaitTime))
	}
	util.Logger.Info("segmenter stats", fields...)
}
