package entstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/store"
)

// AuctionRepo implements store.AuctionRepository over database/sql.
type AuctionRepo struct {
	db    *sql.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sql.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	now := r.clock.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auctions (
			id, listing_id, starting_price, reserve_price, buyout_price,
			minimum_increment, scheduled_start, scheduled_end, effective_end,
			state, auto_extend_enabled, auto_extend_window, auto_extend_increment,
			reserve_met, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.ListingID, a.StartingPrice, a.ReservePrice, a.BuyoutPrice,
		a.MinimumIncrement, a.ScheduledStart, a.ScheduledEnd, a.EffectiveEnd,
		a.State, a.AutoExtendEnabled, a.AutoExtendWindow, a.AutoExtendIncrement,
		a.ReserveMet, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, listing_id, starting_price, reserve_price, buyout_price,
		        minimum_increment, scheduled_start, scheduled_end, effective_end,
		        state, auto_extend_enabled, auto_extend_window, auto_extend_increment,
		        reserve_met, current_bidder_id, current_amount, winner_id, win_amount,
		        unsold_reason, created_at, updated_at
		 FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return a, nil
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, listing_id, starting_price, reserve_price, buyout_price,
		        minimum_increment, scheduled_start, scheduled_end, effective_end,
		        state, auto_extend_enabled, auto_extend_window, auto_extend_increment,
		        reserve_met, current_bidder_id, current_amount, winner_id, win_amount,
		        unsold_reason, created_at, updated_at
		 FROM auctions WHERE state IN ('scheduled', 'live', 'paused')
		 ORDER BY scheduled_start ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing active auctions: %w", err)
	}
	defer rows.Close()

	var auctions []store.Auction
	for rows.Next() {
		a, scanErr := scanAuction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning auction: %w", scanErr)
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(s scanner) (*store.Auction, error) {
	var a store.Auction
	err := s.Scan(
		&a.ID, &a.ListingID, &a.StartingPrice, &a.ReservePrice, &a.BuyoutPrice,
		&a.MinimumIncrement, &a.ScheduledStart, &a.ScheduledEnd, &a.EffectiveEnd,
		&a.State, &a.AutoExtendEnabled, &a.AutoExtendWindow, &a.AutoExtendIncrement,
		&a.ReserveMet, &a.CurrentBidderID, &a.CurrentAmount, &a.WinnerID, &a.WinAmount,
		&a.UnsoldReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
