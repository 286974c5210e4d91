// Package config loads server configuration from the environment and an
// optional YAML file named by CONFIG_FILE. Environment values win over the
// file; the file wins over defaults. Keys are the lower-case environment
// names (curve_base_price, entry_fee, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atmx/dividend-exchange/internal/curve"
	"github.com/atmx/dividend-exchange/internal/exchange"
	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/num"
	"github.com/atmx/dividend-exchange/internal/units"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is everything cmd/server needs.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	BoltPath        string
	NATSURL         string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration

	// ValueDecimals is the number of fractional digits of the native value
	// unit. Prices and caps in the config are display amounts at this
	// precision.
	ValueDecimals uint

	Exchange exchange.Config
}

var keys = []string{
	"port", "database_url", "redis_url", "bolt_path", "nats_url", "cache_ttl", "shutdown_timeout",
	"value_decimals", "token_decimals", "curve_base_price", "curve_slope", "linear_below",
	"min_first_purchase", "entry_fee", "exit_fee", "transfer_fee", "lot_mode", "proceeds",
	"cap_withdrawals", "force_withdraw_on_transfer", "max_purchase", "max_holding",
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("cache_ttl", 30*time.Second)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("value_decimals", 18)
	v.SetDefault("token_decimals", 18)
	v.SetDefault("curve_base_price", "0.0000001")
	v.SetDefault("curve_slope", "0.00000001")
	v.SetDefault("linear_below", "0")
	v.SetDefault("min_first_purchase", "0")
	v.SetDefault("entry_fee", 10)
	v.SetDefault("exit_fee", 10)
	v.SetDefault("transfer_fee", 10)
	v.SetDefault("lot_mode", "disabled")
	v.SetDefault("proceeds", "direct")
	v.SetDefault("cap_withdrawals", false)
	v.SetDefault("force_withdraw_on_transfer", false)
	v.SetDefault("max_purchase", "0")
	v.SetDefault("max_holding", "0")
}

// Load reads the configuration.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, err
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("port"),
		DatabaseURL:     v.GetString("database_url"),
		RedisURL:        v.GetString("redis_url"),
		BoltPath:        v.GetString("bolt_path"),
		NATSURL:         v.GetString("nats_url"),
		CacheTTL:        v.GetDuration("cache_ttl"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		ValueDecimals:   v.GetUint("value_decimals"),
	}

	p := parser{v: v, decimals: cfg.ValueDecimals}
	ex := &cfg.Exchange
	ex.Curve = curve.Params{
		BasePrice:        p.amount("curve_base_price"),
		Slope:            p.amount("curve_slope"),
		Decimals:         v.GetUint("token_decimals"),
		LinearBelow:      p.amount("linear_below"),
		MinFirstPurchase: p.amount("min_first_purchase"),
	}
	ex.Fees = fee.Schedule{
		Entry:    p.percent("entry_fee"),
		Exit:     p.percent("exit_fee"),
		Transfer: p.percent("transfer_fee"),
	}
	ex.Limits = exchange.Limits{
		MaxPurchase: p.amount("max_purchase"),
		// Holdings are token amounts, so they scale with token decimals.
		MaxHolding: p.scaled("max_holding", ex.Curve.Decimals),
	}
	ex.Policy.CapWithdrawals = v.GetBool("cap_withdrawals")
	ex.Policy.ForceWithdrawOnTransfer = v.GetBool("force_withdraw_on_transfer")

	switch mode := strings.ToLower(v.GetString("lot_mode")); mode {
	case "disabled", "":
		ex.Policy.Lots = exchange.LotsDisabled
	case "exclusive":
		ex.Policy.Lots = exchange.LotsExclusive
	default:
		p.fail("lot_mode", fmt.Errorf("unknown mode %q", mode))
	}
	switch proceeds := strings.ToLower(v.GetString("proceeds")); proceeds {
	case "direct", "":
		ex.Policy.Proceeds = exchange.ProceedsDirect
	case "dividends":
		ex.Policy.Proceeds = exchange.ProceedsToDividends
	default:
		p.fail("proceeds", fmt.Errorf("unknown policy %q", proceeds))
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := ex.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if ex.Curve.BasePrice.IsZero() {
		return nil, fmt.Errorf("%w: curve_base_price must be positive", ErrInvalid)
	}
	return cfg, nil
}

// parser keeps the first conversion error.
type parser struct {
	v        *viper.Viper
	decimals uint
	err      error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
	}
}

func (p *parser) amount(key string) num.Uint {
	return p.scaled(key, p.decimals)
}

func (p *parser) scaled(key string, decimals uint) num.Uint {
	u, err := units.ToBase(p.v.GetString(key), decimals)
	if err != nil {
		p.fail(key, err)
	}
	return u
}

func (p *parser) percent(key string) fee.Percent {
	n := p.v.GetInt(key)
	if n < 0 || n >= 100 {
		p.fail(key, fmt.Errorf("percent %d out of range", n))
		return 0
	}
	return fee.Percent(n)
}
