package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	now := r.clock.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO auctions (
			id, listing_id, starting_price, reserve_price, buyout_price,
			minimum_increment, scheduled_start, scheduled_end, effective_end,
			state, auto_extend_enabled, auto_extend_window, auto_extend_increment,
			reserve_met, created_at, updated_at
		) VALUES (
			:id, :listing_id, :starting_price, :reserve_price, :buyout_price,
			:minimum_increment, :scheduled_start, :scheduled_end, :effective_end,
			:state, :auto_extend_enabled, :auto_extend_window, :auto_extend_increment,
			:reserve_met, :created_at, :updated_at
		)`, a)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) UpdateState(ctx context.Context, id, state string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET state = $1, updated_at = $2 WHERE id = $3`,
		state, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating auction state: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("auction %s not found", id)
	}
	return nil
}

func (r *AuctionRepo) SetEffectiveEnd(ctx context.Context, id string, end time.Time) error {
	// effective_end only ever moves forward; a stale projection write
	// must not rewind it.
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET effective_end = $1, updated_at = $2
		 WHERE id = $3 AND effective_end <= $1`,
		end, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting effective end: %w", err)
	}
	return nil
}

func (r *AuctionRepo) SetCurrentBid(ctx context.Context, id, bidderID string, amount int64, reserveMet bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET current_bidder_id = $1, current_amount = $2,
		        reserve_met = $3, updated_at = $4
		 WHERE id = $5`,
		bidderID, amount, reserveMet, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting current bid: %w", err)
	}
	return nil
}

func (r *AuctionRepo) SetSettled(ctx context.Context, id, winnerID string, amount int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET state = 'completed', winner_id = $1, win_amount = $2, updated_at = $3
		 WHERE id = $4`,
		winnerID, amount, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("settling auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) SetUnsold(ctx context.Context, id, state, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET state = $1, unsold_reason = $2, updated_at = $3
		 WHERE id = $4`,
		state, reason, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking auction unsold: %w", err)
	}
	return nil
}

func (r *AuctionRepo) ListActive(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE state IN ('scheduled', 'live', 'paused')
		 ORDER BY scheduled_start ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing active auctions: %w", err)
	}
	return auctions, nil
}
