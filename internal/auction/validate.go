package auction

import "time"

// validateBid checks a candidate bid against current auction state and
// reports whether it met the buyout price. It mutates nothing; callers
// hold the lock. Both manual and proxy-synthesized bids pass through
// here, so every invariant holds for synthetic bids too.
//
// atProxyCap is set when the amount is a proxy holder's registered
// maximum. A capped counter only has to beat the standing bid, not the
// full increment above it; every other bid must clear
// max(starting_price, current + minimum_increment).
//
// The reserve price is deliberately not checked: bids below reserve are
// accepted and lead, and the auction settles unsold if it closes with
// the reserve still unmet.
func validateBid(a *Auction, bidderID string, amount int64, at time.Time, atProxyCap bool) (buyout bool, err error) {
	if a.State != StateLive {
		return false, ErrAuctionNotLive
	}
	if at.After(a.EffectiveEnd) {
		return false, ErrAuctionEnded
	}
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	cur := a.highestBid()

	// Buyout overrides reserve and increment rules, but can never lower
	// the standing bid.
	if a.Terms.BuyoutPrice > 0 && amount >= a.Terms.BuyoutPrice {
		if cur == nil || amount > cur.Amount {
			return true, nil
		}
	}

	if cur == nil {
		if amount < a.Terms.StartingPrice {
			return false, ErrBelowMinimum
		}
		return false, nil
	}

	// The current leader may raise their own standing bid but not
	// re-submit at or below it.
	if bidderID == cur.BidderID && amount <= cur.Amount {
		return false, ErrNotHigherThanCurrent
	}

	floor := cur.Amount + a.Terms.MinimumIncrement
	if atProxyCap {
		floor = cur.Amount + 1
	}
	if amount < floor {
		return false, ErrBelowMinimum
	}
	return false, nil
}
