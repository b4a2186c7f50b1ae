package entstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockmart/auction-engine/internal/store"
)

// BidRepo implements store.BidRepository over database/sql.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sql.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bids (auction_id, seq, bidder_id, amount, is_proxy, idempotency_key, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.AuctionID, b.Seq, b.BidderID, b.Amount, b.IsProxy, b.IdempotencyKey, b.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("appending bid (auction=%s, seq=%d): %w", b.AuctionID, b.Seq, err)
	}
	return nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT auction_id, seq, bidder_id, amount, is_proxy, idempotency_key, submitted_at
		 FROM bids WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	defer rows.Close()

	var bids []store.Bid
	for rows.Next() {
		var b store.Bid
		if err := rows.Scan(&b.AuctionID, &b.Seq, &b.BidderID, &b.Amount, &b.IsProxy, &b.IdempotencyKey, &b.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
