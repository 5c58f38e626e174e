package config

import (
	"time"
)

type MarketplaceConfig struct {
	DefaultCommissionRate float64 `yaml:"default_commission_rate"`
	Currency              string  `yaml:"currency"`
	DefaultSLAMinutes     int     `yaml:"default_sla_minutes"`
}

type TransactionConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

func defaultMarketplaceConfig() *MarketplaceConfig {
	return &MarketplaceConfig{
		DefaultCommissionRate: 0.05,
		Currency:              "PYG",
		DefaultSLAMinutes:     60,
	}
}

func defaultTransactionConfig() *TransactionConfig {
	return &TransactionConfig{
		MaxAttempts: 5,
		Timeout:     10 * time.Second,
	}
}

func applyMarketplaceEnv(m *MarketplaceConfig, t *TransactionConfig) {
	m.DefaultCommissionRate = getEnvAsFloat64("MARKETPLACE_COMMISSION_RATE", m.DefaultCommissionRate)
	m.Currency = getEnv("MARKETPLACE_CURRENCY", m.Currency)
	m.DefaultSLAMinutes = getEnvAsInt("MARKETPLACE_DEFAULT_SLA_MINUTES", m.DefaultSLAMinutes)

	t.MaxAttempts = getEnvAsInt("TRANSACTION_MAX_ATTEMPTS", t.MaxAttempts)
	t.Timeout = getEnvAsDuration("TRANSACTION_TIMEOUT", t.Timeout)
}
