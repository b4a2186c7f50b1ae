package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated   Type = "auction.created"
	AuctionStarted   Type = "auction.started"
	AuctionPaused    Type = "auction.paused"
	AuctionResumed   Type = "auction.resumed"
	AuctionExtended  Type = "auction.extended"
	AuctionSettled   Type = "auction.settled"
	AuctionUnsold    Type = "auction.unsold"
	AuctionCancelled Type = "auction.cancelled"

	BidAccepted     Type = "bid.accepted"
	ProxyRegistered Type = "bid.proxy_registered"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	ListingID           string        `json:"listing_id"`
	StartingPrice       int64         `json:"starting_price"`
	ReservePrice        int64         `json:"reserve_price,omitempty"`
	BuyoutPrice         int64         `json:"buyout_price,omitempty"`
	MinimumIncrement    int64         `json:"minimum_increment"`
	ScheduledStart      time.Time     `json:"scheduled_start"`
	ScheduledEnd        time.Time     `json:"scheduled_end"`
	AutoExtendEnabled   bool          `json:"auto_extend_enabled"`
	AutoExtendWindow    time.Duration `json:"auto_extend_window"`
	AutoExtendIncrement time.Duration `json:"auto_extend_increment"`
}

// BidAcceptedData is the payload for BidAccepted events.
type BidAcceptedData struct {
	Seq            int       `json:"seq"`
	BidderID       string    `json:"bidder_id"`
	Amount         int64     `json:"amount"`
	IsProxy        bool      `json:"is_proxy"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	ReserveMet     bool      `json:"reserve_met"`
}

// ProxyRegisteredData is the payload for ProxyRegistered events.
type ProxyRegisteredData struct {
	BidderID  string `json:"bidder_id"`
	MaxAmount int64  `json:"max_amount"`
	Seq       int    `json:"seq"`
}

// ExtendedData is the payload for AuctionExtended events.
type ExtendedData struct {
	EffectiveEnd time.Time `json:"effective_end"`
	ByAdmin      bool      `json:"by_admin,omitempty"`
}

// PausedData is the payload for AuctionPaused events.
type PausedData struct {
	PausedAt time.Time `json:"paused_at"`
}

// ResumedData is the payload for AuctionResumed events.
type ResumedData struct {
	EffectiveEnd time.Time     `json:"effective_end"`
	PausedFor    time.Duration `json:"paused_for"`
}

// SettledData is the payload for AuctionSettled events.
type SettledData struct {
	WinnerID string `json:"winner_id"`
	Amount   int64  `json:"amount"`
	Buyout   bool   `json:"buyout,omitempty"`
}

// UnsoldData is the payload for AuctionUnsold events.
type UnsoldData struct {
	Reason string `json:"reason"`
}
