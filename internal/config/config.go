// Package config reads server settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "console"

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL string

	LotLockTTL     time.Duration
	AuctionLockTTL time.Duration
	BidCooldown    time.Duration
	PermissiveLots bool

	TaxRate        decimal.Decimal
	PaymentTTL     time.Duration
	PaymentTimeout time.Duration

	MercadoPagoToken string
	PaymentMock      bool
	PublicBaseURL    string

	WSOrigins []string
	SeedDemo  bool
}

// Load reads .env (if any) and then the process environment. Variables
// already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.getInt("REDIS_DB", 0),

		NATSURL: os.Getenv("NATS_URL"),

		LotLockTTL:     p.getDuration("LOT_LOCK_TTL", 5*time.Second),
		AuctionLockTTL: p.getDuration("AUCTION_LOCK_TTL", 10*time.Second),
		BidCooldown:    p.getDuration("BID_COOLDOWN", 2*time.Second),
		PermissiveLots: p.getBool("PERMISSIVE_LOTS", false),

		TaxRate:        p.getDecimal("TAX_RATE", decimal.RequireFromString("0.19")),
		PaymentTTL:     p.getDuration("PAYMENT_TTL", 48*time.Hour),
		PaymentTimeout: p.getDuration("PAYMENT_TIMEOUT", 5*time.Second),

		MercadoPagoToken: strings.TrimSpace(os.Getenv("MERCADOPAGO_ACCESS_TOKEN")),
		PaymentMock:      p.getBool("PAYMENT_GATEWAY_MOCK", false),
		PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		WSOrigins: splitList(os.Getenv("WS_ORIGINS")),
		SeedDemo:  p.getBool("SEED_DEMO", false),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.TaxRate.IsNegative() {
		return Config{}, fmt.Errorf("config TAX_RATE=%s: must not be negative", cfg.TaxRate)
	}
	if cfg.MercadoPagoToken == "" {
		cfg.PaymentMock = true
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parser keeps the first malformed variable it sees.
type parser struct{ err error }

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config %s=%q: %w", key, v, err)
	}
}

func (p *parser) getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

// NewLogger builds a JSON production logger, or a colored console logger
// when format is "console".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
