package auction

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stockmart/auction-engine/internal/event"
	"github.com/stockmart/auction-engine/internal/store"
)

// projectTimeout bounds each read-model write so a slow database cannot
// back the projector up indefinitely.
const projectTimeout = 5 * time.Second

// runProjector applies domain events to the read-model tables. It runs
// on its own goroutine so machine loops never wait on these writes. The
// event log is the source of truth; projection failures are logged and
// skipped.
func (r *Registry) runProjector() {
	for {
		select {
		case e := <-r.proj:
			ctx, cancel := context.WithTimeout(context.Background(), projectTimeout)
			if err := r.apply(ctx, e); err != nil {
				r.logger.Error("read-model projection failed",
					slog.String("auction_id", e.AggregateID),
					slog.String("type", string(e.Type)),
					slog.Any("error", err),
				)
			}
			cancel()
		case <-r.projDone:
			return
		}
	}
}

func (r *Registry) apply(ctx context.Context, e event.Event) error {
	id := e.AggregateID
	switch e.Type {
	case event.AuctionCreated:
		var d event.AuctionCreatedData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		row := &store.Auction{
			ID:                  id,
			ListingID:           d.ListingID,
			StartingPrice:       d.StartingPrice,
			MinimumIncrement:    d.MinimumIncrement,
			ScheduledStart:      d.ScheduledStart,
			ScheduledEnd:        d.ScheduledEnd,
			EffectiveEnd:        d.ScheduledEnd,
			State:               string(StateScheduled),
			AutoExtendEnabled:   d.AutoExtendEnabled,
			AutoExtendWindow:    d.AutoExtendWindow,
			AutoExtendIncrement: d.AutoExtendIncrement,
			ReserveMet:          d.ReservePrice == 0,
		}
		if d.ReservePrice > 0 {
			row.ReservePrice = &d.ReservePrice
		}
		if d.BuyoutPrice > 0 {
			row.BuyoutPrice = &d.BuyoutPrice
		}
		return r.repos.Auctions.Create(ctx, row)

	case event.AuctionStarted:
		return r.repos.Auctions.UpdateState(ctx, id, string(StateLive))

	case event.AuctionPaused:
		return r.repos.Auctions.UpdateState(ctx, id, string(StatePaused))

	case event.AuctionResumed:
		var d event.ResumedData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		if err := r.repos.Auctions.SetEffectiveEnd(ctx, id, d.EffectiveEnd); err != nil {
			return err
		}
		return r.repos.Auctions.UpdateState(ctx, id, string(StateLive))

	case event.AuctionExtended:
		var d event.ExtendedData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		return r.repos.Auctions.SetEffectiveEnd(ctx, id, d.EffectiveEnd)

	case event.BidAccepted:
		var d event.BidAcceptedData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		row := &store.Bid{
			AuctionID:   id,
			Seq:         d.Seq,
			BidderID:    d.BidderID,
			Amount:      d.Amount,
			IsProxy:     d.IsProxy,
			SubmittedAt: d.SubmittedAt,
		}
		if d.IdempotencyKey != "" {
			row.IdempotencyKey = &d.IdempotencyKey
		}
		if err := r.repos.Bids.Append(ctx, row); err != nil {
			return err
		}
		return r.repos.Auctions.SetCurrentBid(ctx, id, d.BidderID, d.Amount, d.ReserveMet)

	case event.ProxyRegistered:
		var d event.ProxyRegisteredData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		return r.repos.ProxyBids.Upsert(ctx, &store.ProxyBid{
			AuctionID: id,
			BidderID:  d.BidderID,
			MaxAmount: d.MaxAmount,
			Seq:       d.Seq,
			CreatedAt: e.CreatedAt,
		})

	case event.AuctionSettled:
		var d event.SettledData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		return r.repos.Auctions.SetSettled(ctx, id, d.WinnerID, d.Amount)

	case event.AuctionUnsold:
		var d event.UnsoldData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return err
		}
		state := StateCompleted
		if d.Reason == "cancelled" {
			state = StateCancelled
		}
		return r.repos.Auctions.SetUnsold(ctx, id, string(state), d.Reason)

	case event.AuctionCancelled:
		// Terminal outcome is written by the unsold event that follows.
		return nil
	}
	return nil
}

// snapshotFromRows rebuilds a query snapshot from the read model for
// auctions whose machines have been evicted.
func snapshotFromRows(row *store.Auction, bids []store.Bid) Snapshot {
	s := Snapshot{
		ID:                  row.ID,
		ListingID:           row.ListingID,
		State:               State(row.State),
		StartingPrice:       row.StartingPrice,
		MinimumIncrement:    row.MinimumIncrement,
		ScheduledStart:      row.ScheduledStart,
		ScheduledEnd:        row.ScheduledEnd,
		EffectiveEnd:        row.EffectiveEnd,
		AutoExtendEnabled:   row.AutoExtendEnabled,
		AutoExtendWindow:    row.AutoExtendWindow,
		AutoExtendIncrement: row.AutoExtendIncrement,
		ReserveMet:          row.ReserveMet,
	}
	if row.ReservePrice != nil {
		s.ReservePrice = *row.ReservePrice
	}
	if row.BuyoutPrice != nil {
		s.BuyoutPrice = *row.BuyoutPrice
	}
	if row.CurrentBidderID != nil {
		s.CurrentBidderID = *row.CurrentBidderID
	}
	if row.CurrentAmount != nil {
		s.CurrentAmount = *row.CurrentAmount
	}
	s.Bids = make([]Bid, 0, len(bids))
	for _, b := range bids {
		s.Bids = append(s.Bids, Bid{
			Seq:         b.Seq,
			BidderID:    b.BidderID,
			Amount:      b.Amount,
			IsProxy:     b.IsProxy,
			SubmittedAt: b.SubmittedAt,
		})
	}
	return s
}
