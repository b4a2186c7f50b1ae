package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stockmart/auction-engine/internal/auction"
)

func TestPlaceBid_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mod     func(*auction.Terms)
		setup   func(t *testing.T, a *auction.Auction)
		bidder  string
		amount  int64
		at      time.Time
		wantErr error
	}{
		{
			name:    "first bid below starting price",
			bidder:  "b1",
			amount:  900,
			at:      base.Add(time.Minute),
			wantErr: auction.ErrBelowMinimum,
		},
		{
			name:   "first bid at starting price",
			bidder: "b1",
			amount: 1000,
			at:     base.Add(time.Minute),
		},
		{
			name:    "zero amount",
			bidder:  "b1",
			amount:  0,
			at:      base.Add(time.Minute),
			wantErr: auction.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			bidder:  "b1",
			amount:  -500,
			at:      base.Add(time.Minute),
			wantErr: auction.ErrInvalidAmount,
		},
		{
			name: "below current plus increment",
			setup: func(t *testing.T, a *auction.Auction) {
				mustBid(t, a, "b1", 1000, base.Add(time.Minute))
			},
			bidder:  "b2",
			amount:  1050,
			at:      base.Add(2 * time.Minute),
			wantErr: auction.ErrBelowMinimum,
		},
		{
			name: "exactly current plus increment",
			setup: func(t *testing.T, a *auction.Auction) {
				mustBid(t, a, "b1", 1000, base.Add(time.Minute))
			},
			bidder: "b2",
			amount: 1100,
			at:     base.Add(2 * time.Minute),
		},
		{
			name: "leader re-submits same amount",
			setup: func(t *testing.T, a *auction.Auction) {
				mustBid(t, a, "b1", 1000, base.Add(time.Minute))
			},
			bidder:  "b1",
			amount:  1000,
			at:      base.Add(2 * time.Minute),
			wantErr: auction.ErrNotHigherThanCurrent,
		},
		{
			name: "leader raises own bid",
			setup: func(t *testing.T, a *auction.Auction) {
				mustBid(t, a, "b1", 1000, base.Add(time.Minute))
			},
			bidder: "b1",
			amount: 1200,
			at:     base.Add(2 * time.Minute),
		},
		{
			name:    "after effective end",
			bidder:  "b1",
			amount:  1500,
			at:      base.Add(2 * time.Hour),
			wantErr: auction.ErrAuctionEnded,
		},
		{
			name: "below reserve is accepted and leads",
			mod:  func(tm *auction.Terms) { tm.ReservePrice = 5000 },
			// Reserve gates settlement, not acceptance.
			bidder: "b1",
			amount: 1200,
			at:     base.Add(time.Minute),
		},
		{
			name:   "buyout skips increment rule",
			mod:    func(tm *auction.Terms) { tm.BuyoutPrice = 8000 },
			setup:  func(t *testing.T, a *auction.Auction) { mustBid(t, a, "b1", 7950, base.Add(time.Minute)) },
			bidder: "b2",
			amount: 8000,
			at:     base.Add(2 * time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newLive(t, tt.mod)
			if tt.setup != nil {
				tt.setup(t, a)
			}
			_, err := a.PlaceBid(auction.Request{
				AuctionID: a.ID, BidderID: tt.bidder, Amount: tt.amount, SubmittedAt: tt.at,
			})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("PlaceBid() error = %v, want accepted", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("PlaceBid() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceBid_NotLiveStates(t *testing.T) {
	a, err := auction.New("auc-1", defaultTerms())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = a.PlaceBid(auction.Request{
		AuctionID: a.ID, BidderID: "b1", Amount: 1500, SubmittedAt: base,
	})
	if !errors.Is(err, auction.ErrAuctionNotLive) {
		t.Errorf("PlaceBid() while scheduled error = %v, want ErrAuctionNotLive", err)
	}
}
