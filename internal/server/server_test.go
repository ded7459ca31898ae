package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/supervisor"
)

type stubClient struct {
	exchange.Client
}

func (s *stubClient) Capabilities() exchange.Capabilities { return exchange.Capabilities{} }

func (s *stubClient) Ticker(ctx context.Context, symbol string, venue domain.Venue) (domain.Ticker, error) {
	return domain.Ticker{LastPrice: 100}, nil
}

func (s *stubClient) OpenOrders(ctx context.Context, symbol string, venue domain.Venue) ([]domain.OpenOrder, error) {
	return nil, nil
}

func (s *stubClient) Cancel(ctx context.Context, symbol, orderID string, venue domain.Venue) error {
	return nil
}

func (s *stubClient) Place(ctx context.Context, spec domain.OrderSpec, venue domain.Venue) (domain.OrderAck, error) {
	return domain.OrderAck{OrderID: "order-1"}, nil
}

type noopTransport struct{}

func (noopTransport) Send(a alerts.Alert) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentPairs: 2,
		Grid: config.GridConfig{
			InitialLevels:           4,
			MinLevels:               2,
			MaxLevels:               20,
			InitialSpacingFraction:  0.01,
			MinSpacingFraction:      0.001,
			TPFraction:              0.03,
			SLFraction:              0.05,
			CancelBudgetPerCycle:    2,
			PlaceBudgetPerCycle:     2,
			MaxConsecutiveFailures:  3,
			RecenterThresholdLevels: 1000,
		},
		Cycles:     config.CyclesConfig{WorkerInterval: time.Hour},
		Supervisor: config.SupervisorConfig{ShutdownGraceSeconds: 1},
	}
}

func newTestServer(t *testing.T) (*Server, *supervisor.Supervisor) {
	t.Helper()
	cfg := testConfig()
	client := &stubClient{}
	sink := alerts.NewSink(noopTransport{}, time.Millisecond)
	bus := events.NewBus()
	sup := supervisor.New(client, sink, nil, bus, nil, cfg, zerolog.Nop())

	s := New(Config{
		Log:        zerolog.Nop(),
		Config:     cfg,
		Supervisor: sup,
		EventBus:   bus,
		Port:       0,
		DevMode:    true,
	})
	return s, sup
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %v", body["status"])
	}
}

func TestHandleListSymbols_EmptyWhenNoneRunning(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/symbols/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Symbols []symbolStatus `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(body.Symbols) != 0 {
		t.Fatalf("expected no symbols running, got %v", body.Symbols)
	}
}

func TestHandleSymbolStatus_NotFoundWhenNotRunning(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/symbols/BTCUSDT", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unmanaged symbol, got %d", rec.Code)
	}
}

func TestHandleFlattenSymbol_QueuesRequestForRunningWorker(t *testing.T) {
	s, sup := newTestServer(t)

	target := map[string]domain.Allocation{"BTCUSDT": {AllocatedUSD: 1000, GridLevels: 4, SpacingFraction: 0.01, Venue: domain.VenueSpot}}
	info := map[string]domain.SymbolInfo{"BTCUSDT": {Symbol: "BTCUSDT", TickSize: 0.01, StepSize: 0.0001, MinNotional: 10}}
	sup.Reconcile(context.Background(), target, info)

	req := httptest.NewRequest(http.MethodPost, "/api/symbols/BTCUSDT/flatten", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
