package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atmx/dividend-exchange/internal/exchange"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %s", cfg.CacheTTL)
	}
	c := cfg.Exchange.Curve
	if c.BasePrice.String() != "100000000000" || c.Slope.String() != "10000000000" {
		t.Errorf("curve = %s/%s", c.BasePrice, c.Slope)
	}
	if c.Decimals != 18 {
		t.Errorf("Decimals = %d", c.Decimals)
	}
	if cfg.Exchange.Fees.Entry != 10 || cfg.Exchange.Fees.Exit != 10 {
		t.Errorf("fees = %+v", cfg.Exchange.Fees)
	}
	if cfg.Exchange.Policy.Lots != exchange.LotsDisabled {
		t.Errorf("lot mode = %d", cfg.Exchange.Policy.Lots)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VALUE_DECIMALS", "0")
	t.Setenv("TOKEN_DECIMALS", "0")
	t.Setenv("CURVE_BASE_PRICE", "100")
	t.Setenv("CURVE_SLOPE", "10")
	t.Setenv("ENTRY_FEE", "5")
	t.Setenv("LOT_MODE", "exclusive")
	t.Setenv("PROCEEDS", "dividends")
	t.Setenv("CAP_WITHDRAWALS", "true")
	t.Setenv("MAX_HOLDING", "50")
	t.Setenv("CACHE_TTL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	ex := cfg.Exchange
	if cfg.Port != "9090" || cfg.CacheTTL != time.Minute {
		t.Errorf("Port = %q CacheTTL = %s", cfg.Port, cfg.CacheTTL)
	}
	if ex.Curve.BasePrice.String() != "100" || ex.Curve.Slope.String() != "10" {
		t.Errorf("curve = %s/%s", ex.Curve.BasePrice, ex.Curve.Slope)
	}
	if ex.Fees.Entry != 5 {
		t.Errorf("Entry = %d", ex.Fees.Entry)
	}
	if ex.Policy.Lots != exchange.LotsExclusive || ex.Policy.Proceeds != exchange.ProceedsToDividends {
		t.Errorf("policy = %+v", ex.Policy)
	}
	if !ex.Policy.CapWithdrawals {
		t.Error("CapWithdrawals not set")
	}
	if ex.Limits.MaxHolding.String() != "50" {
		t.Errorf("MaxHolding = %s", ex.Limits.MaxHolding)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	yaml := "port: \"7070\"\nexit_fee: 3\nproceeds: dividends\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("EXIT_FEE", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7070" {
		t.Errorf("Port = %q", cfg.Port)
	}
	// Environment wins over the file.
	if cfg.Exchange.Fees.Exit != 4 {
		t.Errorf("Exit = %d", cfg.Exchange.Fees.Exit)
	}
	if cfg.Exchange.Policy.Proceeds != exchange.ProceedsToDividends {
		t.Errorf("Proceeds = %d", cfg.Exchange.Policy.Proceeds)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ENTRY_FEE", "100"},
		{"LOT_MODE", "sometimes"},
		{"PROCEEDS", "burn"},
		{"CURVE_BASE_PRICE", "0"},
		{"CURVE_SLOPE", "-1"},
		{"MAX_PURCHASE", "0.0000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("%s=%s: err = %v, want ErrInvalid", tt.key, tt.value, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}
