package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/stockmart/auction-engine/internal/store"
)

// ProxyBidRepo implements store.ProxyBidRepository with sqlx.
type ProxyBidRepo struct {
	db *sqlx.DB
}

// NewProxyBidRepo returns a new ProxyBidRepo.
func NewProxyBidRepo(db *sqlx.DB) *ProxyBidRepo {
	return &ProxyBidRepo{db: db}
}

func (r *ProxyBidRepo) Upsert(ctx context.Context, p *store.ProxyBid) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO proxy_bids (auction_id, bidder_id, max_amount, seq, created_at)
		 VALUES (:auction_id, :bidder_id, :max_amount, :seq, :created_at)
		 ON CONFLICT (auction_id, bidder_id)
		 DO UPDATE SET max_amount = EXCLUDED.max_amount,
		               seq = EXCLUDED.seq,
		               created_at = EXCLUDED.created_at`, p)
	if err != nil {
		return fmt.Errorf("upserting proxy bid (auction=%s, bidder=%s): %w", p.AuctionID, p.BidderID, err)
	}
	return nil
}

func (r *ProxyBidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.ProxyBid, error) {
	var proxies []store.ProxyBid
	err := r.db.SelectContext(ctx, &proxies,
		`SELECT * FROM proxy_bids WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing proxy bids: %w", err)
	}
	return proxies, nil
}
