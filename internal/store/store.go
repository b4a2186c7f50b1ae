package store

import (
	"context"
	"time"
)

// Auction is the persisted read model of one auction, projected from
// the event log by the owning machine's registry.
type Auction struct {
	ID                  string        `db:"id"`
	ListingID           string        `db:"listing_id"`
	StartingPrice       int64         `db:"starting_price"`
	ReservePrice        *int64        `db:"reserve_price"`
	BuyoutPrice         *int64        `db:"buyout_price"`
	MinimumIncrement    int64         `db:"minimum_increment"`
	ScheduledStart      time.Time     `db:"scheduled_start"`
	ScheduledEnd        time.Time     `db:"scheduled_end"`
	EffectiveEnd        time.Time     `db:"effective_end"`
	State               string        `db:"state"`
	AutoExtendEnabled   bool          `db:"auto_extend_enabled"`
	AutoExtendWindow    time.Duration `db:"auto_extend_window"`
	AutoExtendIncrement time.Duration `db:"auto_extend_increment"`
	ReserveMet          bool          `db:"reserve_met"`
	CurrentBidderID     *string       `db:"current_bidder_id"`
	CurrentAmount       *int64        `db:"current_amount"`
	WinnerID            *string       `db:"winner_id"`
	WinAmount           *int64        `db:"win_amount"`
	UnsoldReason        *string       `db:"unsold_reason"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at"`
}

// Bid is one accepted bid in the append-only per-auction log. Seq is
// the per-auction total order assigned by the owning machine.
type Bid struct {
	AuctionID      string    `db:"auction_id"`
	Seq            int       `db:"seq"`
	BidderID       string    `db:"bidder_id"`
	Amount         int64     `db:"amount"`
	IsProxy        bool      `db:"is_proxy"`
	IdempotencyKey *string   `db:"idempotency_key"`
	SubmittedAt    time.Time `db:"submitted_at"`
}

// ProxyBid is one bidder's standing maximum for one auction.
type ProxyBid struct {
	AuctionID string    `db:"auction_id"`
	BidderID  string    `db:"bidder_id"`
	MaxAmount int64     `db:"max_amount"`
	Seq       int       `db:"seq"`
	CreatedAt time.Time `db:"created_at"`
}

// AuctionRepository defines auction read-model persistence.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	UpdateState(ctx context.Context, id, state string) error
	SetEffectiveEnd(ctx context.Context, id string, end time.Time) error
	SetCurrentBid(ctx context.Context, id, bidderID string, amount int64, reserveMet bool) error
	SetSettled(ctx context.Context, id, winnerID string, amount int64) error
	SetUnsold(ctx context.Context, id, state, reason string) error
	ListActive(ctx context.Context) ([]Auction, error)
}

// BidRepository defines bid log persistence. Bids are immutable once
// written; append is the only mutation.
type BidRepository interface {
	Append(ctx context.Context, b *Bid) error
	ListByAuction(ctx context.Context, auctionID string) ([]Bid, error)
}

// ProxyBidRepository defines standing-maximum persistence. One record
// per (auction, bidder); re-registration replaces it.
type ProxyBidRepository interface {
	Upsert(ctx context.Context, p *ProxyBid) error
	ListByAuction(ctx context.Context, auctionID string) ([]ProxyBid, error)
}
