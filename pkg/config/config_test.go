package config

import (
	"strings"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
)

const minimal = `
providers:
  rest:
    - id: metals
      base_url: https://metals.example.com
instruments:
  - symbol: XAU
    category: commodity
    base_currency: XAU
    quote_currency: USD
    source: metals
    update_interval: 30s
rates:
  emergency:
    USD/CAD: 1.35
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Market.HomeCurrency != "CAD" || cfg.Market.RateTTL != 5*time.Minute {
		t.Fatalf("market defaults not applied: %+v", cfg.Market)
	}
	if cfg.Server.Port != 8080 || cfg.Kafka.Topics.Points != "marketboard.points" {
		t.Fatalf("server/kafka defaults not applied")
	}
	if cfg.Rotation.Timezone != "America/Toronto" {
		t.Fatalf("timezone = %q", cfg.Rotation.Timezone)
	}
	if cfg.Instruments[0].UpdateInterval != 30*time.Second {
		t.Fatalf("update interval = %v", cfg.Instruments[0].UpdateInterval)
	}

	em, err := cfg.EmergencyRates()
	if err != nil {
		t.Fatalf("emergency: %v", err)
	}
	if em[models.NewPair("USD", "CAD")] != 1.35 {
		t.Fatalf("emergency = %v", em)
	}
}

func TestParseRejectsUnknownSource(t *testing.T) {
	doc := strings.Replace(minimal, "source: metals", "source: nope", 1)
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestParseRejectsBadEmergencyRate(t *testing.T) {
	doc := strings.Replace(minimal, "USD/CAD: 1.35", "USD/CAD: -1", 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for negative emergency rate")
	}
}

func TestParseRequiresBrokersForProducer(t *testing.T) {
	doc := minimal + "kafka:\n  producer:\n    enabled: true\n"
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "kafka.brokers") {
		t.Fatalf("expected brokers error, got %v", err)
	}
}

func TestParseRequiresFinnhubKey(t *testing.T) {
	doc := strings.Replace(minimal, "providers:\n", "providers:\n  finnhub:\n    enabled: true\n", 1)
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FINNHUB_API_KEY":       "fh",
		"KAFKA_BROKERS":         "a:9092,b:9092",
		"REDIS_ADDR":            "cache:6380",
		"HOME_CURRENCY":         "eur",
		"HTTP_PORT":             "9090",
		"RATES_OPEN_FX_API_KEY": "k",
	}
	var c Config
	c.Rates.Sources = []RateSourceConfig{{ID: "open-fx"}}
	c.applyEnv(func(k string) string { return env[k] })

	if c.Providers.Finnhub.APIKey != "fh" || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("finnhub/kafka env not applied: %+v", c.Kafka.Brokers)
	}
	if c.Redis.Host != "cache" || c.Redis.Port != 6380 {
		t.Fatalf("redis = %s:%d", c.Redis.Host, c.Redis.Port)
	}
	if c.Market.HomeCurrency != "EUR" || c.Server.Port != 9090 {
		t.Fatalf("home=%s port=%d", c.Market.HomeCurrency, c.Server.Port)
	}
	if c.Rates.Sources[0].APIKey != "k" {
		t.Fatalf("rate source key not applied")
	}
}
