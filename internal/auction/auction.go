package auction

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stockmart/auction-engine/internal/event"
)

// State is the lifecycle state of an auction.
type State string

const (
	StateScheduled State = "scheduled"
	StateLive      State = "live"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions leave this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Terms are the seller-fixed parameters of an auction. Amounts are in
// minor currency units. A zero ReservePrice means no reserve; a zero
// BuyoutPrice means no buyout.
type Terms struct {
	ListingID           string
	StartingPrice       int64
	ReservePrice        int64
	BuyoutPrice         int64
	MinimumIncrement    int64
	ScheduledStart      time.Time
	ScheduledEnd        time.Time
	AutoExtendEnabled   bool
	AutoExtendWindow    time.Duration
	AutoExtendIncrement time.Duration
}

func (t Terms) validate() error {
	if t.StartingPrice <= 0 || t.MinimumIncrement <= 0 {
		return ErrInvalidAmount
	}
	if t.ReservePrice < 0 || t.BuyoutPrice < 0 {
		return ErrInvalidAmount
	}
	if !t.ScheduledEnd.After(t.ScheduledStart) {
		return fmt.Errorf("%w: scheduled end %v is not after start %v", ErrInvalidTerms, t.ScheduledEnd, t.ScheduledStart)
	}
	return nil
}

// Bid is an accepted bid in the append-only log. Seq is the per-auction
// admission order assigned by the owning machine, never reused.
type Bid struct {
	Seq         int
	BidderID    string
	Amount      int64
	IsProxy     bool
	SubmittedAt time.Time
}

// ProxyBid is one bidder's standing maximum. Seq is the admission order
// of the registration and is the deterministic tie-break between equal
// maximums: the earlier registration wins at the shared amount.
type ProxyBid struct {
	BidderID  string
	MaxAmount int64
	Seq       int
	Exhausted bool
	CreatedAt time.Time
}

// Request is an incoming bid submission.
type Request struct {
	AuctionID string
	BidderID  string
	Amount    int64
	// MaxProxyAmount, when positive, also registers a standing proxy
	// maximum for the bidder before the manual bid is applied.
	MaxProxyAmount int64
	// IdempotencyKey deduplicates retried submissions per auction.
	IdempotencyKey string
	SubmittedAt    time.Time
}

// Result reports the outcome of a bid submission after any proxy
// cascade has run.
type Result struct {
	Accepted  bool
	Seq       int
	Duplicate bool
	// Completed is set when the bid met the buyout price and ended the
	// auction immediately.
	Completed bool
	// NewHighest and LeaderID describe the standing high bid once the
	// cascade settled; the leader is not necessarily the submitter.
	NewHighest int64
	LeaderID   string
}

// Auction is the aggregate root for a single listing's auction. All
// mutations happen on the owning machine's goroutine; reads may come
// from anywhere and take the read lock.
type Auction struct {
	mu sync.RWMutex

	ID    string
	Terms Terms

	State        State
	EffectiveEnd time.Time
	ReserveMet   bool
	Bids         []Bid
	Proxies      []*ProxyBid

	pausedAt    time.Time
	pausedTotal time.Duration
	seq         int
	processed   map[string]Result

	Version int
	events  []event.Event
}

// New creates an auction in the Scheduled state and records a created
// event.
func New(id string, terms Terms) (*Auction, error) {
	if err := terms.validate(); err != nil {
		return nil, err
	}
	a := &Auction{
		ID:           id,
		Terms:        terms,
		State:        StateScheduled,
		EffectiveEnd: terms.ScheduledEnd,
		ReserveMet:   terms.ReservePrice == 0,
		processed:    make(map[string]Result),
	}
	data, _ := json.Marshal(event.AuctionCreatedData{
		ListingID:           terms.ListingID,
		StartingPrice:       terms.StartingPrice,
		ReservePrice:        terms.ReservePrice,
		BuyoutPrice:         terms.BuyoutPrice,
		MinimumIncrement:    terms.MinimumIncrement,
		ScheduledStart:      terms.ScheduledStart,
		ScheduledEnd:        terms.ScheduledEnd,
		AutoExtendEnabled:   terms.AutoExtendEnabled,
		AutoExtendWindow:    terms.AutoExtendWindow,
		AutoExtendIncrement: terms.AutoExtendIncrement,
	})
	a.recordEvent(event.AuctionCreated, data)
	return a, nil
}

// highestBid returns the last accepted bid. Callers hold the lock.
func (a *Auction) highestBid() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// HighestBid returns a copy of the current highest bid, or nil.
func (a *Auction) HighestBid() *Bid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if h := a.highestBid(); h != nil {
		cp := *h
		return &cp
	}
	return nil
}

// Start transitions Scheduled -> Live.
func (a *Auction) Start(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StateScheduled {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, a.State)
	}
	a.State = StateLive
	data, _ := json.Marshal(struct {
		At time.Time `json:"at"`
	}{at})
	a.recordEvent(event.AuctionStarted, data)
	return nil
}

// Pause transitions Live -> Paused. The clock stops advancing the
// auction while paused; EffectiveEnd is shifted on resume.
func (a *Auction) Pause(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StateLive {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, a.State)
	}
	a.State = StatePaused
	a.pausedAt = at
	data, _ := json.Marshal(event.PausedData{PausedAt: at})
	a.recordEvent(event.AuctionPaused, data)
	return nil
}

// Resume transitions Paused -> Live, shifting EffectiveEnd by the
// paused duration so the remaining live time is preserved.
func (a *Auction) Resume(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StatePaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, a.State)
	}
	pausedFor := at.Sub(a.pausedAt)
	if pausedFor < 0 {
		pausedFor = 0
	}
	a.State = StateLive
	a.pausedTotal += pausedFor
	if err := a.advanceEnd(a.EffectiveEnd.Add(pausedFor)); err != nil {
		return err
	}
	data, _ := json.Marshal(event.ResumedData{EffectiveEnd: a.EffectiveEnd, PausedFor: pausedFor})
	a.recordEvent(event.AuctionResumed, data)
	return nil
}

// Cancel transitions any non-terminal state to Cancelled and records an
// unsold outcome.
func (a *Auction) Cancel(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State.Terminal() {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, a.State)
	}
	a.State = StateCancelled
	data, _ := json.Marshal(struct {
		At time.Time `json:"at"`
	}{at})
	a.recordEvent(event.AuctionCancelled, data)
	unsold, _ := json.Marshal(event.UnsoldData{Reason: "cancelled"})
	a.recordEvent(event.AuctionUnsold, unsold)
	return nil
}

// ForceEnd transitions Live -> Completed by admin action.
func (a *Auction) ForceEnd(at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StateLive {
		return fmt.Errorf("%w: cannot end from %s", ErrInvalidTransition, a.State)
	}
	a.complete(false)
	return nil
}

// AdminExtend pushes EffectiveEnd out by d through the same serialized
// path as bid-driven extensions.
func (a *Auction) AdminExtend(d time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StateLive {
		return fmt.Errorf("%w: cannot extend from %s", ErrInvalidTransition, a.State)
	}
	if d <= 0 {
		return fmt.Errorf("%w: extension must be positive", ErrInvalidTransition)
	}
	if err := a.advanceEnd(a.EffectiveEnd.Add(d)); err != nil {
		return err
	}
	data, _ := json.Marshal(event.ExtendedData{EffectiveEnd: a.EffectiveEnd, ByAdmin: true})
	a.recordEvent(event.AuctionExtended, data)
	return nil
}

// CompleteIfDue transitions Live -> Completed when the effective end
// has passed. It is the handler for closure wake-ups; a timer firing
// after the auction left Live is a no-op. It returns true when the
// auction completed.
func (a *Auction) CompleteIfDue(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.State != StateLive || now.Before(a.EffectiveEnd) {
		return false
	}
	a.complete(false)
	return true
}

// complete records the terminal Completed state and the settlement
// outcome. Callers hold the lock.
func (a *Auction) complete(buyout bool) {
	a.State = StateCompleted
	cur := a.highestBid()
	if cur != nil && a.ReserveMet {
		data, _ := json.Marshal(event.SettledData{WinnerID: cur.BidderID, Amount: cur.Amount, Buyout: buyout})
		a.recordEvent(event.AuctionSettled, data)
		return
	}
	reason := "no_bids"
	if cur != nil {
		reason = "reserve_not_met"
	}
	data, _ := json.Marshal(event.UnsoldData{Reason: reason})
	a.recordEvent(event.AuctionUnsold, data)
}

// PlaceBid runs the full acceptance pipeline: idempotency check,
// optional proxy registration, validation, append, anti-sniping
// extension and the proxy cascade.
func (a *Auction) PlaceBid(req Request) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.IdempotencyKey != "" {
		if prior, ok := a.processed[req.IdempotencyKey]; ok {
			prior.Duplicate = true
			return prior, ErrDuplicateRequest
		}
	}

	if req.MaxProxyAmount > 0 {
		if err := a.registerProxy(req.BidderID, req.MaxProxyAmount, req.SubmittedAt); err != nil {
			return Result{}, err
		}
	}

	buyout, err := validateBid(a, req.BidderID, req.Amount, req.SubmittedAt, false)
	if err != nil {
		return Result{}, err
	}

	seq := a.appendBid(req.BidderID, req.Amount, false, req.IdempotencyKey, req.SubmittedAt)

	res := Result{Accepted: true, Seq: seq}
	if buyout {
		a.ReserveMet = true
		a.complete(true)
		res.Completed = true
	} else {
		if err := a.maybeExtend(req.SubmittedAt); err != nil {
			return Result{}, err
		}
		if err := a.runCascade(req.SubmittedAt); err != nil {
			return Result{}, err
		}
	}

	cur := a.highestBid()
	res.NewHighest = cur.Amount
	res.LeaderID = cur.BidderID
	if req.IdempotencyKey != "" {
		a.processed[req.IdempotencyKey] = res
	}
	return res, nil
}

// RegisterProxy registers or replaces the bidder's standing maximum.
func (a *Auction) RegisterProxy(bidderID string, maxAmount int64, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registerProxy(bidderID, maxAmount, at)
}

func (a *Auction) registerProxy(bidderID string, maxAmount int64, at time.Time) error {
	if a.State != StateLive {
		return ErrAuctionNotLive
	}
	if maxAmount <= 0 {
		return ErrInvalidAmount
	}
	floor := a.Terms.StartingPrice
	if cur := a.highestBid(); cur != nil {
		floor = cur.Amount + 1
	}
	if maxAmount < floor {
		return ErrProxyMaxTooLow
	}

	a.seq++
	rec := &ProxyBid{BidderID: bidderID, MaxAmount: maxAmount, Seq: a.seq, CreatedAt: at}
	replaced := false
	for i, p := range a.Proxies {
		if p.BidderID == bidderID {
			a.Proxies[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		a.Proxies = append(a.Proxies, rec)
	}

	data, _ := json.Marshal(event.ProxyRegisteredData{BidderID: bidderID, MaxAmount: maxAmount, Seq: rec.Seq})
	a.recordEvent(event.ProxyRegistered, data)
	return nil
}

// appendBid appends an accepted bid, assigns its sequence number,
// updates the reserve flag and records the accepted event. Callers hold
// the lock and have already validated the bid.
func (a *Auction) appendBid(bidderID string, amount int64, isProxy bool, idemKey string, at time.Time) int {
	a.seq++
	a.Bids = append(a.Bids, Bid{
		Seq:         a.seq,
		BidderID:    bidderID,
		Amount:      amount,
		IsProxy:     isProxy,
		SubmittedAt: at,
	})
	if a.Terms.ReservePrice > 0 && amount >= a.Terms.ReservePrice {
		a.ReserveMet = true
	}
	data, _ := json.Marshal(event.BidAcceptedData{
		Seq:            a.seq,
		BidderID:       bidderID,
		Amount:         amount,
		IsProxy:        isProxy,
		IdempotencyKey: idemKey,
		SubmittedAt:    at,
		ReserveMet:     a.ReserveMet,
	})
	a.recordEvent(event.BidAccepted, data)
	return a.seq
}

// advanceEnd moves EffectiveEnd forward. Moving it backwards is an
// internal bug, not a user-facing condition.
func (a *Auction) advanceEnd(to time.Time) error {
	if to.Before(a.EffectiveEnd) {
		return fmt.Errorf("%w: effective end would move from %v back to %v", ErrInvariantViolation, a.EffectiveEnd, to)
	}
	a.EffectiveEnd = to
	return nil
}

func (a *Auction) recordEvent(t event.Type, data json.RawMessage) {
	a.Version++
	a.events = append(a.events, event.Event{
		AggregateID: a.ID,
		Type:        t,
		Data:        data,
		Version:     a.Version,
	})
}

// PendingEvents returns uncommitted events and clears the buffer.
func (a *Auction) PendingEvents() []event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := a.events
	a.events = nil
	return events
}

// Snapshot is a read-only view of auction state for queries.
type Snapshot struct {
	ID                  string        `json:"id"`
	ListingID           string        `json:"listing_id"`
	State               State         `json:"state"`
	StartingPrice       int64         `json:"starting_price"`
	ReservePrice        int64         `json:"reserve_price,omitempty"`
	BuyoutPrice         int64         `json:"buyout_price,omitempty"`
	MinimumIncrement    int64         `json:"minimum_increment"`
	ScheduledStart      time.Time     `json:"scheduled_start"`
	ScheduledEnd        time.Time     `json:"scheduled_end"`
	EffectiveEnd        time.Time     `json:"effective_end"`
	AutoExtendEnabled   bool          `json:"auto_extend_enabled"`
	AutoExtendWindow    time.Duration `json:"auto_extend_window"`
	AutoExtendIncrement time.Duration `json:"auto_extend_increment"`
	ReserveMet          bool          `json:"reserve_met"`
	CurrentBidderID     string        `json:"current_bidder_id,omitempty"`
	CurrentAmount       int64         `json:"current_amount,omitempty"`
	Bids                []Bid         `json:"bids"`
	Version             int           `json:"version"`
}

// Snapshot returns a consistent copy of the auction state. It takes
// only the read lock and never enters the machine queue, so queries do
// not contend with the write path.
func (a *Auction) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Snapshot{
		ID:                  a.ID,
		ListingID:           a.Terms.ListingID,
		State:               a.State,
		StartingPrice:       a.Terms.StartingPrice,
		ReservePrice:        a.Terms.ReservePrice,
		BuyoutPrice:         a.Terms.BuyoutPrice,
		MinimumIncrement:    a.Terms.MinimumIncrement,
		ScheduledStart:      a.Terms.ScheduledStart,
		ScheduledEnd:        a.Terms.ScheduledEnd,
		EffectiveEnd:        a.EffectiveEnd,
		AutoExtendEnabled:   a.Terms.AutoExtendEnabled,
		AutoExtendWindow:    a.Terms.AutoExtendWindow,
		AutoExtendIncrement: a.Terms.AutoExtendIncrement,
		ReserveMet:          a.ReserveMet,
		Bids:                append([]Bid(nil), a.Bids...),
		Version:             a.Version,
	}
	if cur := a.highestBid(); cur != nil {
		s.CurrentBidderID = cur.BidderID
		s.CurrentAmount = cur.Amount
	}
	return s
}

// Replay reconstructs an auction from its event history. The result is
// deterministic: proxy tie-breaks depend only on stored registration
// sequence numbers, never on wall-clock ordering at resolution time.
func Replay(events []event.Event) (*Auction, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to replay")
	}

	a := &Auction{processed: make(map[string]Result)}
	for _, e := range events {
		switch e.Type {
		case event.AuctionCreated:
			var d event.AuctionCreatedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling created event: %w", err)
			}
			a.ID = e.AggregateID
			a.Terms = Terms{
				ListingID:           d.ListingID,
				StartingPrice:       d.StartingPrice,
				ReservePrice:        d.ReservePrice,
				BuyoutPrice:         d.BuyoutPrice,
				MinimumIncrement:    d.MinimumIncrement,
				ScheduledStart:      d.ScheduledStart,
				ScheduledEnd:        d.ScheduledEnd,
				AutoExtendEnabled:   d.AutoExtendEnabled,
				AutoExtendWindow:    d.AutoExtendWindow,
				AutoExtendIncrement: d.AutoExtendIncrement,
			}
			a.State = StateScheduled
			a.EffectiveEnd = d.ScheduledEnd
			a.ReserveMet = d.ReservePrice == 0

		case event.AuctionStarted:
			a.State = StateLive

		case event.AuctionPaused:
			var d event.PausedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling paused event: %w", err)
			}
			a.State = StatePaused
			a.pausedAt = d.PausedAt

		case event.AuctionResumed:
			var d event.ResumedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling resumed event: %w", err)
			}
			a.State = StateLive
			a.pausedTotal += d.PausedFor
			a.EffectiveEnd = d.EffectiveEnd

		case event.AuctionExtended:
			var d event.ExtendedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling extended event: %w", err)
			}
			a.EffectiveEnd = d.EffectiveEnd

		case event.BidAccepted:
			var d event.BidAcceptedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling bid event: %w", err)
			}
			a.Bids = append(a.Bids, Bid{
				Seq:         d.Seq,
				BidderID:    d.BidderID,
				Amount:      d.Amount,
				IsProxy:     d.IsProxy,
				SubmittedAt: d.SubmittedAt,
			})
			a.ReserveMet = a.ReserveMet || d.ReserveMet
			if d.Seq > a.seq {
				a.seq = d.Seq
			}
			if d.IdempotencyKey != "" {
				a.processed[d.IdempotencyKey] = Result{
					Accepted: true, Seq: d.Seq, NewHighest: d.Amount, LeaderID: d.BidderID,
				}
			}

		case event.ProxyRegistered:
			var d event.ProxyRegisteredData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("unmarshalling proxy event: %w", err)
			}
			rec := &ProxyBid{BidderID: d.BidderID, MaxAmount: d.MaxAmount, Seq: d.Seq, CreatedAt: e.CreatedAt}
			replaced := false
			for i, p := range a.Proxies {
				if p.BidderID == d.BidderID {
					a.Proxies[i] = rec
					replaced = true
					break
				}
			}
			if !replaced {
				a.Proxies = append(a.Proxies, rec)
			}
			if d.Seq > a.seq {
				a.seq = d.Seq
			}

		case event.AuctionSettled:
			a.State = StateCompleted

		case event.AuctionUnsold:
			if a.State != StateCancelled {
				a.State = StateCompleted
			}

		case event.AuctionCancelled:
			a.State = StateCancelled
		}
		a.Version = e.Version
	}
	return a, nil
}
