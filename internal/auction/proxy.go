package auction

import "time"

// runCascade synthesizes counter-bids after an accepted bid until no
// standing maximum beats the current high bid. Each synthetic bid goes
// through validateBid like a manual one and is appended with the proxy
// flag set.
//
// The cascade is deterministic from stored state alone: the challenger
// at each step is the proxy with the highest maximum, ties broken by
// the lower registration sequence. When two holders share a maximum,
// the earlier registration wins at that amount and the later one is
// exhausted without bidding at the shared cap.
//
// Termination: every accepted counter strictly raises the standing bid,
// which is bounded by the largest registered maximum, and every
// rejected counter permanently exhausts its proxy.
func (a *Auction) runCascade(at time.Time) error {
	for {
		if a.State != StateLive {
			return nil
		}
		cur := a.highestBid()
		if cur == nil {
			return nil
		}
		c := a.bestChallenger(cur)
		if c == nil {
			return nil
		}

		amount := cur.Amount + a.Terms.MinimumIncrement
		if c.MaxAmount < amount {
			amount = c.MaxAmount
		}

		if amount == c.MaxAmount {
			if e := a.earlierEqualMax(c); e != nil {
				c.Exhausted = true
				// The earlier holder must still pay the tie price. It
				// is the current leader here, or already spent.
				if e.BidderID == cur.BidderID && cur.Amount < e.MaxAmount {
					if err := a.acceptSynthetic(e, e.MaxAmount, at); err != nil {
						return err
					}
				}
				continue
			}
		}

		if err := a.acceptSynthetic(c, amount, at); err != nil {
			return err
		}
	}
}

// bestChallenger picks the proxy that should counter the current bid:
// a live registration held by someone other than the leader whose
// maximum still beats the standing amount, ordered by maximum
// descending then registration sequence ascending.
func (a *Auction) bestChallenger(cur *Bid) *ProxyBid {
	var best *ProxyBid
	for _, p := range a.Proxies {
		if p.Exhausted || p.BidderID == cur.BidderID || p.MaxAmount <= cur.Amount {
			continue
		}
		if best == nil || p.MaxAmount > best.MaxAmount ||
			(p.MaxAmount == best.MaxAmount && p.Seq < best.Seq) {
			best = p
		}
	}
	return best
}

// earlierEqualMax returns the earliest-registered proxy sharing c's
// maximum, held by a different bidder, or nil.
func (a *Auction) earlierEqualMax(c *ProxyBid) *ProxyBid {
	var earliest *ProxyBid
	for _, p := range a.Proxies {
		if p.BidderID == c.BidderID || p.MaxAmount != c.MaxAmount || p.Seq >= c.Seq {
			continue
		}
		if earliest == nil || p.Seq < earliest.Seq {
			earliest = p
		}
	}
	return earliest
}

// acceptSynthetic feeds one counter-bid through the validator and
// appends it on acceptance. A typed rejection exhausts the proxy; only
// internal invariant violations propagate.
func (a *Auction) acceptSynthetic(p *ProxyBid, amount int64, at time.Time) error {
	atCap := amount == p.MaxAmount
	buyout, err := validateBid(a, p.BidderID, amount, at, atCap)
	if err != nil {
		p.Exhausted = true
		return nil
	}
	a.appendBid(p.BidderID, amount, true, "", at)
	if buyout {
		a.ReserveMet = true
		a.complete(true)
		return nil
	}
	return a.maybeExtend(at)
}
