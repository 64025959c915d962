package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FundingPolicy holds the tunables of the funding lifecycle.
type FundingPolicy struct {
	AllowOvershoot        bool    `mapstructure:"allowOvershoot"`
	DistributionTolerance float64 `mapstructure:"distributionTolerance"`
	RefundExpiryDays      int     `mapstructure:"refundExpiryDays"`
	LaunchTimelineDays    int     `mapstructure:"launchTimelineDays"`
	NativeUSDRate         float64 `mapstructure:"nativeUsdRate"`
	ConflictRetries       int     `mapstructure:"conflictRetries"`
	TokenMaxAttempts      int     `mapstructure:"tokenMaxAttempts"`
}

func DefaultFundingPolicy() FundingPolicy {
	return FundingPolicy{
		AllowOvershoot:        false,
		DistributionTolerance: 0.01,
		RefundExpiryDays:      60,
		LaunchTimelineDays:    45,
		NativeUSDRate:         150,
		ConflictRetries:       3,
		TokenMaxAttempts:      8,
	}
}

func (p FundingPolicy) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(p.DistributionTolerance)
}

func (p FundingPolicy) StaticRate() decimal.Decimal {
	return decimal.NewFromFloat(p.NativeUSDRate)
}

type FundingPolicyHolder struct {
	current atomic.Value // holds FundingPolicy
}

// NewFundingPolicyHolderFrom returns a holder pinned to policy.
func NewFundingPolicyHolderFrom(policy FundingPolicy) *FundingPolicyHolder {
	holder := &FundingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewFundingPolicyHolder(log *zap.Logger) (*FundingPolicyHolder, error) {
	log = log.Named("config.funding")
	v := viper.New()

	v.SetConfigName("funding")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/franchisefund/config")
	v.AddConfigPath("/etc/franchisefund")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FRANCHISEFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFundingPolicy()
	v.SetDefault("funding.allowOvershoot", defaults.AllowOvershoot)
	v.SetDefault("funding.distributionTolerance", defaults.DistributionTolerance)
	v.SetDefault("funding.refundExpiryDays", defaults.RefundExpiryDays)
	v.SetDefault("funding.launchTimelineDays", defaults.LaunchTimelineDays)
	v.SetDefault("funding.nativeUsdRate", defaults.NativeUSDRate)
	v.SetDefault("funding.conflictRetries", defaults.ConflictRetries)
	v.SetDefault("funding.tokenMaxAttempts", defaults.TokenMaxAttempts)

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		configFound = false
	}

	policy, err := decodeFundingPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validateFundingPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewFundingPolicyHolderFrom(policy)
	if !configFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeFundingPolicy(v)
		if err != nil {
			log.Warn("funding policy reload failed", zap.Error(err))
			return
		}
		if err := validateFundingPolicy(updated); err != nil {
			log.Warn("invalid funding policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("funding policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeFundingPolicy goes through the full settings map so defaults fill
// keys missing from a partial file.
func decodeFundingPolicy(v *viper.Viper) (FundingPolicy, error) {
	var wrapper struct {
		Funding FundingPolicy `mapstructure:"funding"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return FundingPolicy{}, err
	}
	return wrapper.Funding, nil
}

func (h *FundingPolicyHolder) Get() FundingPolicy {
	if h == nil {
		return DefaultFundingPolicy()
	}
	policy, ok := h.current.Load().(FundingPolicy)
	if !ok {
		return DefaultFundingPolicy()
	}
	return policy
}

func validateFundingPolicy(p FundingPolicy) error {
	if p.DistributionTolerance < 0 {
		return errors.New("funding.distributionTolerance cannot be negative")
	}
	if p.RefundExpiryDays <= 0 {
		return errors.New("funding.refundExpiryDays must be positive")
	}
	if p.LaunchTimelineDays <= 0 {
		return errors.New("funding.launchTimelineDays must be positive")
	}
	if p.NativeUSDRate <= 0 {
		return errors.New("funding.nativeUsdRate must be positive")
	}
	if p.ConflictRetries <= 0 {
		return errors.New("funding.conflictRetries must be positive")
	}
	if p.TokenMaxAttempts <= 0 {
		return errors.New("funding.tokenMaxAttempts must be positive")
	}
	return nil
}
