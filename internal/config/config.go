// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	PaymentAddress string `env:"PAYMENT_SYSTEM_ADDRESS"`
	PaymentToken   string `env:"PAYMENT_PROVIDER_TOKEN"`
	// PaymentTestMode включает немедленное подтверждение счетов без провайдера.
	PaymentTestMode bool   `env:"PAYMENT_TEST_MODE" envDefault:"false"`
	NotifyAddress   string `env:"NOTIFY_GATEWAY_ADDRESS"`
	// GatewaySecret — общий секрет подписи запросов шлюза мессенджера.
	GatewaySecret string `env:"GATEWAY_SECRET"`
	OperatorKey   string `env:"OPERATOR_KEY"`
	BotLink       string `env:"BOT_LINK" envDefault:"https://t.me/RazMedBot"`

	ReferredDiscountPercent  float64 `env:"REFERRED_DISCOUNT_PERCENT" envDefault:"10"`
	ReferrerBonusPercent     float64 `env:"REFERRER_BONUS_PERCENT" envDefault:"5"`
	ClarificationWindowHours int     `env:"CLARIFICATION_WINDOW_HOURS" envDefault:"24"`
}

// Parse считывает конфигурацию из .env, переменных окружения и флагов командной строки.
// Значения окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен: в проде параметры приходят из окружения.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPaymentAddress := cfg.PaymentAddress
	envNotifyAddress := cfg.NotifyAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentAddress, "p", "", "payment system address")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentAddress != "" {
		cfg.PaymentAddress = envPaymentAddress
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.ReferredDiscountPercent <= 0 || cfg.ReferredDiscountPercent > 100 {
		return nil, fmt.Errorf("referred discount percent out of range: %v", cfg.ReferredDiscountPercent)
	}
	if cfg.ReferrerBonusPercent < 0 || cfg.ReferrerBonusPercent > 100 {
		return nil, fmt.Errorf("referrer bonus percent out of range: %v", cfg.ReferrerBonusPercent)
	}
	if cfg.ClarificationWindowHours <= 0 {
		return nil, fmt.Errorf("clarification window must be positive: %d", cfg.ClarificationWindowHours)
	}

	return cfg, nil
}
