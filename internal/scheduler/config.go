package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/franchisefund/internal/config"
)

const (
	JobFundingSweep  = "funding_sweep"
	JobRefundExpiry  = "refund_expiry"
	JobWalletClosure = "wallet_closure"
	JobTokenDispatch = "token_dispatch"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SchedulerInterval,
		BatchSize:   cfg.SchedulerBatchSize,
		EnabledJobs: cfg.SchedulerEnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func (c Config) jobEnabled(job string) bool {
	// empty means every job runs in this process
	if len(c.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range c.EnabledJobs {
		if strings.EqualFold(enabled, job) {
			return true
		}
	}
	return false
}
