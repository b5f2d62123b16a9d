package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	domrepo "MarketBoard/internal/domain/repository"
	mid "MarketBoard/internal/middleware"
	"MarketBoard/internal/services/rotation"
	"MarketBoard/internal/usecase"
	"MarketBoard/pkg/config"
	xhttp "MarketBoard/pkg/http"
	applogger "MarketBoard/pkg/logger"
)

type pushProvider struct {
	mu           sync.Mutex
	connected    bool
	disconnected bool
}

func (p *pushProvider) ID() string { return "feed" }
func (p *pushProvider) Mode() models.FetchMode { return models.FetchPush }
func (p *pushProvider) OnUpdate(func(models.RawQuote)) {}

func (p *pushProvider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *pushProvider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
	return nil
}

func (p *pushProvider) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *pushProvider) FetchOnce(context.Context, models.Instrument) (models.RawQuote, error) {
	return models.RawQuote{}, models.ErrTransientProvider
}

func TestRunContextStartsAndShutsDown(t *testing.T) {
	log := applogger.Nop()
	cfg := &config.Config{}
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Rotation.Groups = []config.RotationGroup{{
		Name:        "main",
		GroupConfig: rotation.GroupConfig{FixedSlots: 1, RotationInterval: time.Hour},
		Items:       []models.RotationItem{{ID: "btc", Symbol: "BTC", Weight: 1}},
	}}

	prov := &pushProvider{}
	agg, err := usecase.NewAggregator(usecase.AggregatorOptions{HomeCurrency: "USD"}, []models.Instrument{{
		Symbol:          "BTC",
		Category:        models.CategoryCrypto,
		BaseCurrency:    "BTC",
		QuoteCurrency:   "USD",
		Source:          "feed",
		ShowInDashboard: true,
	}}, []domrepo.ProviderAdapter{prov}, log)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}

	rot := rotation.NewScheduler(log)
	if err := rot.Initialize("main", cfg.Rotation.Groups[0].Items, cfg.Rotation.Groups[0].GroupConfig); err != nil {
		t.Fatalf("rotation: %v", err)
	}
	sink := mid.NewSinkPipeline(nil, nil, nil, log)
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))

	var mu sync.Mutex
	var closed []string
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			closed = append(closed, name)
			return nil
		}
	}
	app := New(cfg, log, agg, rot, sink, srv,
		WithCloser("first", record("first")),
		WithCloser("second", record("second")),
		WithCloser("skipped", nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !rot.Running("main") || !prov.isConnected() {
		if time.Now().After(deadline) {
			t.Fatal("app never finished starting")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown timed out")
	}

	if rot.Running("main") {
		t.Fatal("rotation still running after shutdown")
	}
	prov.mu.Lock()
	defer prov.mu.Unlock()
	if !prov.connected || !prov.disconnected {
		t.Fatalf("provider connected=%v disconnected=%v", prov.connected, prov.disconnected)
	}
	if len(closed) != 2 || closed[0] != "first" || closed[1] != "second" {
		t.Fatalf("closers = %v", closed)
	}
}
