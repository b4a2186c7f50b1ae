package entstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockmart/auction-engine/internal/store"
)

// ProxyBidRepo implements store.ProxyBidRepository over database/sql.
type ProxyBidRepo struct {
	db *sql.DB
}

// NewProxyBidRepo returns a new ProxyBidRepo.
func NewProxyBidRepo(db *sql.DB) *ProxyBidRepo {
	return &ProxyBidRepo{db: db}
}

func (r *ProxyBidRepo) Upsert(ctx context.Context, p *store.ProxyBid) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO proxy_bids (auction_id, bidder_id, max_amount, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (auction_id, bidder_id)
		 DO UPDATE SET max_amount = EXCLUDED.max_amount,
		               seq = EXCLUDED.seq,
		               created_at = EXCLUDED.created_at`,
		p.AuctionID, p.BidderID, p.MaxAmount, p.Seq, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting proxy bid (auction=%s, bidder=%s): %w", p.AuctionID, p.BidderID, err)
	}
	return nil
}

func (r *ProxyBidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.ProxyBid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT auction_id, bidder_id, max_amount, seq, created_at
		 FROM proxy_bids WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing proxy bids: %w", err)
	}
	defer rows.Close()

	var proxies []store.ProxyBid
	for rows.Next() {
		var p store.ProxyBid
		if err := rows.Scan(&p.AuctionID, &p.BidderID, &p.MaxAmount, &p.Seq, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning proxy bid: %w", err)
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}
