package auction

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/event"
)

// wakeRetryDelay is how long a closure wake-up backs off when the
// command queue is saturated. Timers carry no authority of their own;
// a deferred wake-up just re-evaluates later.
const wakeRetryDelay = 50 * time.Millisecond

// AdminAction is a serialized control request for one auction.
type AdminAction string

const (
	ActionStart    AdminAction = "start"
	ActionPause    AdminAction = "pause"
	ActionResume   AdminAction = "resume"
	ActionCancel   AdminAction = "cancel"
	ActionForceEnd AdminAction = "force_end"
	ActionExtend   AdminAction = "extend"
)

type cmdKind int

const (
	cmdBid cmdKind = iota
	cmdProxy
	cmdControl
	cmdTick
)

type command struct {
	kind      cmdKind
	bid       Request
	bidderID  string
	maxAmount int64
	action    AdminAction
	at        time.Time
	reply     chan reply
}

type reply struct {
	res Result
	err error
}

// machine is the single logical processing unit for one auction. All
// mutating operations are admitted into its queue and execute strictly
// in admission order; that order is the authoritative tie-break for
// simultaneous bids and for closure-vs-bid races.
type machine struct {
	auc         *Auction
	cmds        chan command
	quit        chan struct{}
	stopOnce    sync.Once
	clock       clock.Clock
	events      event.Store
	sink        func(event.Event)
	onTerminal  func(auctionID string)
	logger      *slog.Logger
	adminExtend time.Duration
	timer       clock.Timer
	halted      bool
}

func newMachine(a *Auction, queueSize int, clk clock.Clock, events event.Store, sink func(event.Event), onTerminal func(string), logger *slog.Logger, adminExtend time.Duration) *machine {
	return &machine{
		auc:         a,
		cmds:        make(chan command, queueSize),
		quit:        make(chan struct{}),
		clock:       clk,
		events:      events,
		sink:        sink,
		onTerminal:  onTerminal,
		logger:      logger,
		adminExtend: adminExtend,
	}
}

// CurrentState returns the auction's state under the read lock.
func (a *Auction) CurrentState() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.State
}

// nextDeadline reports the next moment the machine must wake up: the
// scheduled start while Scheduled, the effective end while Live.
func (a *Auction) nextDeadline() (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.State {
	case StateScheduled:
		return a.Terms.ScheduledStart, true
	case StateLive:
		return a.EffectiveEnd, true
	default:
		return time.Time{}, false
	}
}

func (m *machine) run() {
	m.reschedule()
	for {
		select {
		case cmd := <-m.cmds:
			m.handle(cmd)
		case <-m.quit:
			return
		}
	}
}

// submit admits a command into the queue without blocking. A saturated
// queue is reported as ErrAuctionBusy, a transient condition the caller
// retries with the same idempotency key.
func (m *machine) submit(ctx context.Context, cmd command) (Result, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case <-m.quit:
		return Result{}, ErrAuctionNotLive
	default:
	}
	select {
	case m.cmds <- cmd:
	default:
		return Result{}, ErrAuctionBusy
	}
	select {
	case r := <-cmd.reply:
		return r.res, r.err
	case <-m.quit:
		return Result{}, ErrAuctionNotLive
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *machine) handle(cmd command) {
	if m.halted {
		m.respond(cmd, Result{}, ErrInvariantViolation)
		return
	}

	var (
		res Result
		err error
	)
	switch cmd.kind {
	case cmdBid:
		res, err = m.auc.PlaceBid(cmd.bid)
	case cmdProxy:
		err = m.auc.RegisterProxy(cmd.bidderID, cmd.maxAmount, cmd.at)
	case cmdControl:
		err = m.control(cmd)
	case cmdTick:
		m.tick()
	}

	if errors.Is(err, ErrInvariantViolation) {
		m.halt(err)
	}
	m.flush()
	if m.halted && err == nil {
		res, err = Result{}, ErrInvariantViolation
	}
	m.respond(cmd, res, err)

	if m.halted {
		return
	}
	if m.auc.CurrentState().Terminal() {
		m.stop()
		if m.onTerminal != nil {
			m.onTerminal(m.auc.ID)
		}
		return
	}
	m.reschedule()
}

func (m *machine) control(cmd command) error {
	switch cmd.action {
	case ActionStart:
		return m.auc.Start(cmd.at)
	case ActionPause:
		return m.auc.Pause(cmd.at)
	case ActionResume:
		return m.auc.Resume(cmd.at)
	case ActionCancel:
		return m.auc.Cancel(cmd.at)
	case ActionForceEnd:
		return m.auc.ForceEnd(cmd.at)
	case ActionExtend:
		return m.auc.AdminExtend(m.adminExtend)
	default:
		return ErrInvalidTransition
	}
}

// tick re-evaluates clock-driven transitions. It is deliberately
// state-checked here, inside the queue: a wake-up that arrives after
// the auction already left Live is a no-op.
func (m *machine) tick() {
	now := m.clock.Now()
	if m.auc.CurrentState() == StateScheduled && !now.Before(m.auc.Terms.ScheduledStart) {
		if err := m.auc.Start(now); err != nil {
			m.logger.Error("scheduled start failed",
				slog.String("auction_id", m.auc.ID),
				slog.Any("error", err),
			)
		}
	}
	if m.auc.CompleteIfDue(now) {
		m.logger.Info("auction closed by deadline",
			slog.String("auction_id", m.auc.ID),
		)
	}
}

// flush persists pending events in order and hands them to the outbound
// sink. The machine is the single writer for this aggregate, so append
// order matches acceptance order.
func (m *machine) flush() {
	pending := m.auc.PendingEvents()
	if len(pending) == 0 {
		return
	}
	if err := m.events.Append(context.Background(), pending...); err != nil {
		m.logger.Error("failed to persist auction events",
			slog.String("auction_id", m.auc.ID),
			slog.Int("count", len(pending)),
			slog.Any("error", err),
		)
		// In-memory state now leads the log. Halt instead of accepting
		// further bids that could never be recovered.
		m.halt(err)
		return
	}
	if m.sink != nil {
		for _, e := range pending {
			m.sink(e)
		}
	}
}

func (m *machine) respond(cmd command, res Result, err error) {
	if cmd.reply == nil {
		return
	}
	cmd.reply <- reply{res: res, err: err}
}

// reschedule points the wake-up timer at the next deadline, if any.
func (m *machine) reschedule() {
	at, ok := m.auc.nextDeadline()
	if !ok {
		if m.timer != nil {
			m.timer.Stop()
		}
		return
	}
	d := at.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}
	if m.timer == nil {
		m.timer = m.clock.AfterFunc(d, m.wake)
		return
	}
	m.timer.Reset(d)
}

// wake injects a tick into the queue. It runs on the timer goroutine
// and never mutates state directly.
func (m *machine) wake() {
	select {
	case <-m.quit:
		return
	default:
	}
	select {
	case m.cmds <- command{kind: cmdTick}:
	default:
		// Queue saturated; the bids ahead of us may move the deadline
		// anyway. Try again shortly.
		m.timer.Reset(wakeRetryDelay)
	}
}

// halt freezes the machine after an internal invariant violation. The
// unit stops processing rather than corrupt state further.
func (m *machine) halt(err error) {
	m.halted = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.logger.Error("auction machine halted",
		slog.String("auction_id", m.auc.ID),
		slog.Any("error", err),
	)
}

func (m *machine) stop() {
	m.stopOnce.Do(func() {
		if m.timer != nil {
			m.timer.Stop()
		}
		close(m.quit)
	})
}
