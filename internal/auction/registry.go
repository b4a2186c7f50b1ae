package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/event"
	"github.com/stockmart/auction-engine/internal/store"
)

// Options tunes the registry. Zero values fall back to defaults.
type Options struct {
	// QueueSize bounds each machine's command queue.
	QueueSize int
	// EventBufferSize bounds the outbound event channel.
	EventBufferSize int
	// AdminExtendDuration is applied by the Extend admin action.
	AdminExtendDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 1024
	}
	if o.AdminExtendDuration <= 0 {
		o.AdminExtendDuration = 5 * time.Minute
	}
	return o
}

// Registry routes incoming requests to per-auction machines, manages
// their creation and eviction, and fans out domain events to external
// collaborators. Machines for different auctions run fully in parallel;
// the registry holds no per-bid shared state.
type Registry struct {
	mu       sync.RWMutex
	machines map[string]*machine
	closed   bool

	repos    *store.Repositories
	out      chan event.Event
	proj     chan event.Event
	projDone chan struct{}
	opts     Options
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewRegistry creates a registry backed by the given repositories and
// starts its read-model projector.
func NewRegistry(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, opts Options) *Registry {
	opts = opts.withDefaults()
	r := &Registry{
		machines: make(map[string]*machine),
		repos:    repos,
		out:      make(chan event.Event, opts.EventBufferSize),
		proj:     make(chan event.Event, opts.EventBufferSize),
		projDone: make(chan struct{}),
		opts:     opts,
		clock:    clk,
		logger:   logger,
		tracer:   tp.Tracer("github.com/stockmart/auction-engine/internal/auction"),
	}
	go r.runProjector()
	return r
}

// Events is the outbound stream consumed by settlement, relisting and
// notification collaborators. Sends never block bid processing: when
// the consumer falls behind, events are dropped from this stream (the
// persisted log remains complete).
func (r *Registry) Events() <-chan event.Event {
	return r.out
}

// CreateAuction instantiates a machine for a new auction in the
// Scheduled state and returns its id.
func (r *Registry) CreateAuction(ctx context.Context, terms Terms) (string, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.CreateAuction",
		trace.WithAttributes(attribute.String("listing_id", terms.ListingID)),
	)
	defer span.End()

	id := uuid.NewString()
	a, err := New(id, terms)
	if err != nil {
		return "", err
	}

	// Persist the created event before the machine is reachable.
	pending := a.PendingEvents()
	if err := r.repos.Events.Append(ctx, pending...); err != nil {
		return "", fmt.Errorf("persisting auction created event: %w", err)
	}
	for _, e := range pending {
		r.sink(e)
	}

	m := newMachine(a, r.opts.QueueSize, r.clock, r.repos.Events, r.sink, r.evict, r.logger, r.opts.AdminExtendDuration)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", fmt.Errorf("registry is shut down")
	}
	r.machines[id] = m
	r.mu.Unlock()

	go m.run()

	r.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", id),
		slog.String("listing_id", terms.ListingID),
		slog.Time("scheduled_start", terms.ScheduledStart),
		slog.Time("scheduled_end", terms.ScheduledEnd),
	)
	return id, nil
}

// PlaceBid routes a bid to its auction's machine.
func (r *Registry) PlaceBid(ctx context.Context, req Request) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction_id", req.AuctionID),
			attribute.String("bidder_id", req.BidderID),
			attribute.Int64("amount", req.Amount),
		),
	)
	defer span.End()

	m, err := r.machine(req.AuctionID)
	if err != nil {
		return Result{}, err
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = r.clock.Now()
	}
	res, err := m.submit(ctx, command{kind: cmdBid, bid: req, at: req.SubmittedAt})
	if err == nil {
		r.logger.InfoContext(ctx, "bid accepted",
			slog.String("auction_id", req.AuctionID),
			slog.String("bidder_id", req.BidderID),
			slog.Int64("amount", req.Amount),
			slog.Int64("new_highest", res.NewHighest),
			slog.String("leader_id", res.LeaderID),
		)
	}
	return res, err
}

// RegisterProxyBid registers or replaces a standing maximum.
func (r *Registry) RegisterProxyBid(ctx context.Context, auctionID, bidderID string, maxAmount int64) error {
	ctx, span := r.tracer.Start(ctx, "Registry.RegisterProxyBid",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("bidder_id", bidderID),
			attribute.Int64("max_amount", maxAmount),
		),
	)
	defer span.End()

	m, err := r.machine(auctionID)
	if err != nil {
		return err
	}
	_, err = m.submit(ctx, command{
		kind:      cmdProxy,
		bidderID:  bidderID,
		maxAmount: maxAmount,
		at:        r.clock.Now(),
	})
	return err
}

// AdminControl applies a lifecycle action through the same serialized
// queue as bids.
func (r *Registry) AdminControl(ctx context.Context, auctionID string, action AdminAction) error {
	ctx, span := r.tracer.Start(ctx, "Registry.AdminControl",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("action", string(action)),
		),
	)
	defer span.End()

	m, err := r.machine(auctionID)
	if err != nil {
		return err
	}
	_, err = m.submit(ctx, command{kind: cmdControl, action: action, at: r.clock.Now()})
	if err == nil {
		r.logger.InfoContext(ctx, "admin control applied",
			slog.String("auction_id", auctionID),
			slog.String("action", string(action)),
		)
	}
	return err
}

// GetAuctionState returns a snapshot. Active auctions are served from
// the in-memory aggregate outside the write path; terminal auctions
// fall back to the persisted read model.
func (r *Registry) GetAuctionState(ctx context.Context, auctionID string) (Snapshot, error) {
	r.mu.RLock()
	m, ok := r.machines[auctionID]
	r.mu.RUnlock()
	if ok {
		return m.auc.Snapshot(), nil
	}

	row, err := r.repos.Auctions.GetByID(ctx, auctionID)
	if err != nil {
		return Snapshot{}, ErrAuctionNotFound
	}
	bids, err := r.repos.Bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading bid log: %w", err)
	}
	return snapshotFromRows(row, bids), nil
}

// Recover replays all non-terminal auctions from the event store and
// re-registers machines for them, rescheduling their closure timers.
// Used on leader startup so auctions survive failover.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Recover")
	defer span.End()

	created, err := r.repos.Events.LoadByType(ctx, event.AuctionCreated)
	if err != nil {
		return 0, fmt.Errorf("loading auction created events: %w", err)
	}

	seen := make(map[string]struct{}, len(created))
	var ids []string
	for _, e := range created {
		if _, ok := seen[e.AggregateID]; !ok {
			seen[e.AggregateID] = struct{}{}
			ids = append(ids, e.AggregateID)
		}
	}

	recovered := 0
	for _, id := range ids {
		events, loadErr := r.repos.Events.Load(ctx, id)
		if loadErr != nil {
			r.logger.WarnContext(ctx, "failed to load auction events during recovery",
				slog.String("auction_id", id),
				slog.Any("error", loadErr),
			)
			continue
		}
		a, replayErr := Replay(events)
		if replayErr != nil {
			r.logger.WarnContext(ctx, "failed to replay auction during recovery",
				slog.String("auction_id", id),
				slog.Any("error", replayErr),
			)
			continue
		}
		if a.CurrentState().Terminal() {
			continue
		}

		m := newMachine(a, r.opts.QueueSize, r.clock, r.repos.Events, r.sink, r.evict, r.logger, r.opts.AdminExtendDuration)
		r.mu.Lock()
		r.machines[id] = m
		r.mu.Unlock()
		go m.run()
		recovered++

		r.logger.InfoContext(ctx, "recovered auction",
			slog.String("auction_id", id),
			slog.String("state", string(a.CurrentState())),
			slog.Int("bids", len(a.Bids)),
		)
	}

	r.logger.InfoContext(ctx, "auction recovery complete",
		slog.Int("total_created", len(ids)),
		slog.Int("recovered", recovered),
	)
	return recovered, nil
}

// Close stops all machines. In-flight callers receive a not-live error.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	machines := make([]*machine, 0, len(r.machines))
	for _, m := range r.machines {
		machines = append(machines, m)
	}
	r.machines = make(map[string]*machine)
	r.mu.Unlock()

	for _, m := range machines {
		m.stop()
	}
	close(r.projDone)
}

func (r *Registry) machine(auctionID string) (*machine, error) {
	r.mu.RLock()
	m, ok := r.machines[auctionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return m, nil
}

// evict removes a terminal auction's machine. The auction remains
// queryable via the persisted read model.
func (r *Registry) evict(auctionID string) {
	r.mu.Lock()
	delete(r.machines, auctionID)
	r.mu.Unlock()
	r.logger.Info("auction machine evicted",
		slog.String("auction_id", auctionID),
	)
}

// sink receives every persisted event from the machines. It hands the
// event to the read-model projector and the outbound stream without
// ever blocking the calling machine; the persisted event log remains
// the complete record when either channel is saturated.
func (r *Registry) sink(e event.Event) {
	select {
	case r.proj <- e:
	default:
		r.logger.Warn("read-model projection dropped, projector too slow",
			slog.String("auction_id", e.AggregateID),
			slog.String("type", string(e.Type)),
		)
	}
	select {
	case r.out <- e:
	default:
		r.logger.Warn("outbound event dropped, consumer too slow",
			slog.String("auction_id", e.AggregateID),
			slog.String("type", string(e.Type)),
		)
	}
}
