// Package config содержит логику чтения конфигурации сервиса записи и заказов зоомагазина.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	PaymentGatewayAddress string        `env:"PAYMENT_GATEWAY_ADDRESS"`
	KafkaBrokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	RedisAddress          string        `env:"REDIS_ADDRESS"`
	AuthSecret            string        `env:"AUTH_SECRET,required,notEmpty"`
	ShippingFee           int64         `env:"SHIPPING_FEE" envDefault:"30000"`
	FreeShippingThreshold int64         `env:"FREE_SHIPPING_THRESHOLD" envDefault:"0"`
	RateLimitPerMinute    int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	Timezone              string        `env:"TIMEZONE" envDefault:"UTC"`
	OutboxPollInterval    time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`

	// MintAdmin задаёт идентификатор администратора, для которого нужно выпустить токен и завершиться.
	MintAdmin string
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.PaymentGatewayAddress
	envKafkaBrokers := cfg.KafkaBrokers
	envRedisAddress := cfg.RedisAddress

	var kafkaBrokers string
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty means in-memory store)")
	flag.StringVar(&cfg.PaymentGatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&kafkaBrokers, "k", "", "comma separated kafka brokers")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for rate limiting")
	flag.StringVar(&cfg.MintAdmin, "mint-admin", "", "print an admin token for the given id and exit")

	flag.Parse()

	cfg.KafkaBrokers = splitList(kafkaBrokers)

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.PaymentGatewayAddress = envGatewayAddress
	}
	if len(envKafkaBrokers) > 0 {
		cfg.KafkaBrokers = envKafkaBrokers
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.ShippingFee < 0 || cfg.FreeShippingThreshold < 0 {
		return nil, fmt.Errorf("shipping amounts must not be negative")
	}

	return cfg, nil
}

// Location возвращает часовой пояс магазина.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
