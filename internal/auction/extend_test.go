package auction_test

import (
	"testing"
	"time"

	"github.com/stockmart/auction-engine/internal/auction"
	"github.com/stockmart/auction-engine/internal/event"
)

func autoExtendTerms(tm *auction.Terms) {
	tm.AutoExtendEnabled = true
	tm.AutoExtendWindow = 2 * time.Minute
	tm.AutoExtendIncrement = 3 * time.Minute
}

func TestAutoExtend_BidInsideWindow(t *testing.T) {
	a := newLive(t, autoExtendTerms)
	end := a.Snapshot().EffectiveEnd

	// 30 seconds before the end, inside the 2 minute window.
	at := end.Add(-30 * time.Second)
	mustBid(t, a, "b1", 1200, at)

	want := at.Add(3 * time.Minute)
	if got := a.Snapshot().EffectiveEnd; !got.Equal(want) {
		t.Errorf("EffectiveEnd = %v, want %v (bid time + increment)", got, want)
	}
}

func TestAutoExtend_BidOutsideWindow(t *testing.T) {
	a := newLive(t, autoExtendTerms)
	end := a.Snapshot().EffectiveEnd

	mustBid(t, a, "b1", 1200, end.Add(-10*time.Minute))

	if got := a.Snapshot().EffectiveEnd; !got.Equal(end) {
		t.Errorf("EffectiveEnd = %v, want unchanged %v", got, end)
	}
}

// A bid inside the window extends; the next bid is judged against the
// new window, so extensions can chain but only while bids keep landing
// late.
func TestAutoExtend_Chains(t *testing.T) {
	a := newLive(t, autoExtendTerms)
	end := a.Snapshot().EffectiveEnd

	first := end.Add(-30 * time.Second)
	mustBid(t, a, "b1", 1200, first)
	end = a.Snapshot().EffectiveEnd

	// Inside the shifted window again.
	second := end.Add(-time.Minute)
	mustBid(t, a, "b2", 1400, second)
	if got := a.Snapshot().EffectiveEnd; !got.Equal(second.Add(3 * time.Minute)) {
		t.Fatalf("EffectiveEnd = %v, want %v", got, second.Add(3*time.Minute))
	}
	end = a.Snapshot().EffectiveEnd

	// Well before the latest window: no further extension.
	mustBid(t, a, "b3", 1600, end.Add(-10*time.Minute))
	if got := a.Snapshot().EffectiveEnd; !got.Equal(end) {
		t.Errorf("EffectiveEnd = %v, want unchanged %v", got, end)
	}
}

func TestAutoExtend_NeverShortens(t *testing.T) {
	a := newLive(t, func(tm *auction.Terms) {
		tm.AutoExtendEnabled = true
		tm.AutoExtendWindow = 10 * time.Minute
		tm.AutoExtendIncrement = time.Minute
	})
	end := a.Snapshot().EffectiveEnd

	// Inside the window but submittedAt + increment lands before the
	// current end; the end must not move backwards.
	mustBid(t, a, "b1", 1200, end.Add(-8*time.Minute))
	if got := a.Snapshot().EffectiveEnd; !got.Equal(end) {
		t.Errorf("EffectiveEnd = %v, want unchanged %v", got, end)
	}
}

func TestAutoExtend_Disabled(t *testing.T) {
	a := newLive(t, nil)
	end := a.Snapshot().EffectiveEnd
	mustBid(t, a, "b1", 1200, end.Add(-time.Second))
	if got := a.Snapshot().EffectiveEnd; !got.Equal(end) {
		t.Errorf("EffectiveEnd = %v, want unchanged %v with auto-extend off", got, end)
	}
}

func TestAutoExtend_EmitsExtendedEvent(t *testing.T) {
	a := newLive(t, autoExtendTerms)
	end := a.Snapshot().EffectiveEnd
	a.PendingEvents()

	mustBid(t, a, "b1", 1200, end.Add(-30*time.Second))
	types := eventTypes(a)
	if countType(types, event.AuctionExtended) != 1 {
		t.Errorf("events = %v, want one extended event", types)
	}
}

// Synthetic proxy counters participate in anti-sniping exactly like
// manual bids.
func TestAutoExtend_ProxyCounterExtends(t *testing.T) {
	a := newLive(t, autoExtendTerms)
	if err := a.RegisterProxy("B", 5000, base.Add(time.Minute)); err != nil {
		t.Fatalf("RegisterProxy() error = %v", err)
	}
	end := a.Snapshot().EffectiveEnd

	at := end.Add(-30 * time.Second)
	mustBid(t, a, "A", 1000, at)

	// Both A's bid and B's counter landed at the same instant; the end
	// is bid time + increment either way.
	if got := a.Snapshot().EffectiveEnd; !got.Equal(at.Add(3 * time.Minute)) {
		t.Errorf("EffectiveEnd = %v, want %v", got, at.Add(3*time.Minute))
	}
}
