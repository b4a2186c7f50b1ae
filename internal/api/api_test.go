package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stockmart/auction-engine/internal/api"
	"github.com/stockmart/auction-engine/internal/auction"
	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/event"
	"github.com/stockmart/auction-engine/internal/store"
)

// In-memory store backing the handler tests. The read-model side is a
// no-op: these tests exercise live machines only.

type memEventStore struct {
	events []event.Event
}

func (m *memEventStore) Append(_ context.Context, events ...event.Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memEventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

type nopAuctionRepo struct{}

func (nopAuctionRepo) Create(context.Context, *store.Auction) error { return nil }
func (nopAuctionRepo) GetByID(context.Context, string) (*store.Auction, error) {
	return nil, errors.New("not found")
}
func (nopAuctionRepo) UpdateState(context.Context, string, string) error          { return nil }
func (nopAuctionRepo) SetEffectiveEnd(context.Context, string, time.Time) error   { return nil }
func (nopAuctionRepo) SetCurrentBid(context.Context, string, string, int64, bool) error {
	return nil
}
func (nopAuctionRepo) SetSettled(context.Context, string, string, int64) error { return nil }
func (nopAuctionRepo) SetUnsold(context.Context, string, string, string) error { return nil }
func (nopAuctionRepo) ListActive(context.Context) ([]store.Auction, error)     { return nil, nil }

type nopBidRepo struct{}

func (nopBidRepo) Append(context.Context, *store.Bid) error { return nil }
func (nopBidRepo) ListByAuction(context.Context, string) ([]store.Bid, error) {
	return nil, nil
}

type nopProxyRepo struct{}

func (nopProxyRepo) Upsert(context.Context, *store.ProxyBid) error { return nil }
func (nopProxyRepo) ListByAuction(context.Context, string) ([]store.ProxyBid, error) {
	return nil, nil
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*fiberApp, *auction.Registry) {
	t.Helper()
	repos := &store.Repositories{
		Auctions:  nopAuctionRepo{},
		Bids:      nopBidRepo{},
		ProxyBids: nopProxyRepo{},
		Events:    &memEventStore{},
		Ping:      func(context.Context) error { return nil },
	}
	registry := auction.NewRegistry(repos, slog.Default(), noop.NewTracerProvider(), clock.NewMock(testStart), auction.Options{})
	t.Cleanup(registry.Close)
	app := api.NewApp(api.NewHandler(registry, slog.Default()))
	return &fiberApp{t: t, app: app}, registry
}

// fiberApp wraps app.Test with JSON plumbing.
type fiberApp struct {
	t   *testing.T
	app interface {
		Test(req *http.Request, msTimeout ...int) (*http.Response, error)
	}
}

func (f *fiberApp) do(method, path string, body any) (*http.Response, map[string]any) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			f.t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	if err != nil {
		f.t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, 5000)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	var decoded map[string]any
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
		decoded = nil
	}
	resp.Body.Close()
	return resp, decoded
}

func createLiveAuction(t *testing.T, f *fiberApp) string {
	t.Helper()
	resp, body := f.do(http.MethodPost, "/v1/auctions", map[string]any{
		"listing_id":        "lot-7",
		"starting_price":    1000,
		"minimum_increment": 100,
		"scheduled_start":   testStart,
		"scheduled_end":     testStart.Add(time.Hour),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create auction status = %d, want 201", resp.StatusCode)
	}
	id, _ := body["auction_id"].(string)
	if id == "" {
		t.Fatal("create auction returned no id")
	}
	resp, _ = f.do(http.MethodPost, "/v1/auctions/"+id+"/control", map[string]any{"action": "start"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	return id
}

func TestCreateAuction_InvalidTerms(t *testing.T) {
	f, _ := newTestApp(t)
	resp, _ := f.do(http.MethodPost, "/v1/auctions", map[string]any{
		"listing_id":      "lot-7",
		"starting_price":  0,
		"scheduled_start": testStart,
		"scheduled_end":   testStart.Add(time.Hour),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestPlaceBid_FullFlow(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)

	resp, body := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", id), map[string]any{
		"bidder_id": "b1",
		"amount":    1500,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bid status = %d, want 201", resp.StatusCode)
	}
	if accepted, _ := body["accepted"].(bool); !accepted {
		t.Errorf("accepted = %v, want true", body["accepted"])
	}
	if leader, _ := body["leader_id"].(string); leader != "b1" {
		t.Errorf("leader = %q, want b1", leader)
	}

	resp, body = f.do(http.MethodGet, "/v1/auctions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	if state, _ := body["state"].(string); state != "live" {
		t.Errorf("state = %q, want live", state)
	}
	if amt, _ := body["current_amount"].(float64); int64(amt) != 1500 {
		t.Errorf("current_amount = %v, want 1500", body["current_amount"])
	}
}

func TestPlaceBid_DomainErrorMapping(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{
			name:       "below starting price",
			body:       map[string]any{"bidder_id": "b1", "amount": 500},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "zero amount",
			body:       map[string]any{"bidder_id": "b1", "amount": 0},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing bidder",
			body:       map[string]any{"amount": 1500},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", id), tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	f, _ := newTestApp(t)
	resp, _ := f.do(http.MethodPost, "/v1/auctions/unknown/bids", map[string]any{
		"bidder_id": "b1",
		"amount":    1500,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPlaceBid_DuplicateReturns200(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)

	body := map[string]any{"bidder_id": "b1", "amount": 1500, "idempotency_key": "req-1"}
	resp, _ := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", id), body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first bid status = %d, want 201", resp.StatusCode)
	}

	resp, decoded := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", id), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate status = %d, want 200", resp.StatusCode)
	}
	if dup, _ := decoded["duplicate"].(bool); !dup {
		t.Errorf("duplicate = %v, want true", decoded["duplicate"])
	}
}

func TestRegisterProxyBid(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)

	resp, _ := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/proxy-bids", id), map[string]any{
		"bidder_id":  "B",
		"max_amount": 5000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("proxy status = %d, want 201", resp.StatusCode)
	}

	// The proxy engages on the next competing bid.
	resp, body := f.do(http.MethodPost, fmt.Sprintf("/v1/auctions/%s/bids", id), map[string]any{
		"bidder_id": "A",
		"amount":    1000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bid status = %d, want 201", resp.StatusCode)
	}
	if leader, _ := body["leader_id"].(string); leader != "B" {
		t.Errorf("leader = %q, want B (proxy counter)", leader)
	}
}

func TestControl_UnknownAction(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)
	resp, _ := f.do(http.MethodPost, "/v1/auctions/"+id+"/control", map[string]any{"action": "explode"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestControl_InvalidTransition(t *testing.T) {
	f, _ := newTestApp(t)
	id := createLiveAuction(t, f)
	// Resuming a live auction is a conflict.
	resp, _ := f.do(http.MethodPost, "/v1/auctions/"+id+"/control", map[string]any{"action": "resume"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}
