package cache

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StartReporter logs the occupancy of every tier on a fixed schedule.
// The caller stops it by calling Stop on the returned cron.
func StartReporter(c *SessionCache, every string, log *slog.Logger) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@every "+every, func() {
		for _, s := range c.Report() {
			log.Info("cache occupancy",
				"cache", s.Name,
				"len", s.Len,
				"capacity", s.Capacity,
				"ttl", s.TTL.String(),
				"percent_full", fmt.Sprintf("%.1f", s.PercentFull),
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling cache report: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}
