package auction

import (
	"encoding/json"
	"time"

	"github.com/stockmart/auction-engine/internal/event"
)

// maybeExtend applies the anti-sniping rule after an accepted bid. When
// the bid landed within the auto-extend window of the effective end,
// the end is pushed to submittedAt + auto_extend_increment. The rule is
// idempotent per bid, may chain across consecutive late bids, and never
// shortens the effective end. Callers hold the lock.
func (a *Auction) maybeExtend(submittedAt time.Time) error {
	if !a.Terms.AutoExtendEnabled {
		return nil
	}
	windowStart := a.EffectiveEnd.Add(-a.Terms.AutoExtendWindow)
	if submittedAt.Before(windowStart) {
		return nil
	}
	newEnd := submittedAt.Add(a.Terms.AutoExtendIncrement)
	if !newEnd.After(a.EffectiveEnd) {
		return nil
	}
	if err := a.advanceEnd(newEnd); err != nil {
		return err
	}
	data, _ := json.Marshal(event.ExtendedData{EffectiveEnd: a.EffectiveEnd})
	a.recordEvent(event.AuctionExtended, data)
	return nil
}
