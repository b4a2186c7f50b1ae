package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/stockmart/auction-engine/internal/store"
)

// BidRepo implements store.BidRepository with sqlx. The bids table is
// append-only; rows are never updated or deleted.
type BidRepo struct {
	db *sqlx.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO bids (auction_id, seq, bidder_id, amount, is_proxy, idempotency_key, submitted_at)
		 VALUES (:auction_id, :seq, :bidder_id, :amount, :is_proxy, :idempotency_key, :submitted_at)`, b)
	if err != nil {
		return fmt.Errorf("appending bid (auction=%s, seq=%d): %w", b.AuctionID, b.Seq, err)
	}
	return nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}
