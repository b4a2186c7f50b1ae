// Package api exposes the auction engine over HTTP. Handlers are thin:
// they decode, call the registry, and map domain errors to status codes.
package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stockmart/auction-engine/internal/auction"
)

// Handler wires auction registry operations to HTTP routes.
type Handler struct {
	registry *auction.Registry
	logger   *slog.Logger
}

func NewHandler(registry *auction.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// NewApp builds the fiber application with all routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "auctiond",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	v1 := app.Group("/v1")
	v1.Post("/auctions", h.CreateAuction)
	v1.Get("/auctions/:id", h.GetAuction)
	v1.Post("/auctions/:id/bids", h.PlaceBid)
	v1.Post("/auctions/:id/proxy-bids", h.RegisterProxyBid)
	v1.Post("/auctions/:id/control", h.Control)

	return app
}

type createAuctionRequest struct {
	ListingID           string    `json:"listing_id"`
	StartingPrice       int64     `json:"starting_price"`
	ReservePrice        int64     `json:"reserve_price"`
	BuyoutPrice         int64     `json:"buyout_price"`
	MinimumIncrement    int64     `json:"minimum_increment"`
	ScheduledStart      time.Time `json:"scheduled_start"`
	ScheduledEnd        time.Time `json:"scheduled_end"`
	AutoExtendEnabled   bool      `json:"auto_extend_enabled"`
	AutoExtendWindowSec int64     `json:"auto_extend_window_seconds"`
	AutoExtendIncSec    int64     `json:"auto_extend_increment_seconds"`
}

func (h *Handler) CreateAuction(c *fiber.Ctx) error {
	var req createAuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	terms := auction.Terms{
		ListingID:           req.ListingID,
		StartingPrice:       req.StartingPrice,
		ReservePrice:        req.ReservePrice,
		BuyoutPrice:         req.BuyoutPrice,
		MinimumIncrement:    req.MinimumIncrement,
		ScheduledStart:      req.ScheduledStart,
		ScheduledEnd:        req.ScheduledEnd,
		AutoExtendEnabled:   req.AutoExtendEnabled,
		AutoExtendWindow:    time.Duration(req.AutoExtendWindowSec) * time.Second,
		AutoExtendIncrement: time.Duration(req.AutoExtendIncSec) * time.Second,
	}
	id, err := h.registry.CreateAuction(c.Context(), terms)
	if err != nil {
		return h.domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"auction_id": id,
	})
}

func (h *Handler) GetAuction(c *fiber.Ctx) error {
	snap, err := h.registry.GetAuctionState(c.Context(), c.Params("id"))
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(snap)
}

type placeBidRequest struct {
	BidderID       string     `json:"bidder_id"`
	Amount         int64      `json:"amount"`
	MaxProxyAmount int64      `json:"max_proxy_amount"`
	IdempotencyKey string     `json:"idempotency_key"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

func (h *Handler) PlaceBid(c *fiber.Ctx) error {
	var req placeBidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BidderID == "" {
		return badRequest(c, "bidder_id is required")
	}
	bid := auction.Request{
		AuctionID:      c.Params("id"),
		BidderID:       req.BidderID,
		Amount:         req.Amount,
		MaxProxyAmount: req.MaxProxyAmount,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.SubmittedAt != nil {
		bid.SubmittedAt = *req.SubmittedAt
	}
	res, err := h.registry.PlaceBid(c.Context(), bid)
	if err != nil && !errors.Is(err, auction.ErrDuplicateRequest) {
		return h.domainError(c, err)
	}
	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"accepted":    res.Accepted,
		"seq":         res.Seq,
		"duplicate":   res.Duplicate,
		"completed":   res.Completed,
		"new_highest": res.NewHighest,
		"leader_id":   res.LeaderID,
	})
}

type proxyBidRequest struct {
	BidderID  string `json:"bidder_id"`
	MaxAmount int64  `json:"max_amount"`
}

func (h *Handler) RegisterProxyBid(c *fiber.Ctx) error {
	var req proxyBidRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BidderID == "" {
		return badRequest(c, "bidder_id is required")
	}
	if err := h.registry.RegisterProxyBid(c.Context(), c.Params("id"), req.BidderID, req.MaxAmount); err != nil {
		return h.domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"registered": true,
	})
}

type controlRequest struct {
	Action string `json:"action"`
}

func (h *Handler) Control(c *fiber.Ctx) error {
	var req controlRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	action := auction.AdminAction(req.Action)
	switch action {
	case auction.ActionStart, auction.ActionPause, auction.ActionResume,
		auction.ActionCancel, auction.ActionForceEnd, auction.ActionExtend:
	default:
		return badRequest(c, "unknown action")
	}
	if err := h.registry.AdminControl(c.Context(), c.Params("id"), action); err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(fiber.Map{
		"applied": true,
	})
}

// errorCodes maps domain sentinels to the stable codes clients match on.
var errorCodes = map[error]string{
	auction.ErrAuctionNotFound:      "auction_not_found",
	auction.ErrAuctionBusy:          "auction_busy",
	auction.ErrAuctionNotLive:       "auction_not_live",
	auction.ErrAuctionEnded:         "auction_ended",
	auction.ErrInvalidTransition:    "invalid_transition",
	auction.ErrBelowMinimum:         "below_minimum",
	auction.ErrNotHigherThanCurrent: "not_higher_than_current",
	auction.ErrInvalidAmount:        "invalid_amount",
	auction.ErrInvalidTerms:         "invalid_terms",
	auction.ErrProxyMaxTooLow:       "proxy_max_too_low",
}

// domainError translates sentinel errors from the auction package into
// HTTP responses. Unknown errors are logged and reported as 500 without
// leaking internals.
func (h *Handler) domainError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		return fail(c, fiber.StatusNotFound, err)
	case errors.Is(err, auction.ErrAuctionBusy):
		c.Set(fiber.HeaderRetryAfter, "1")
		return fail(c, fiber.StatusServiceUnavailable, err)
	case errors.Is(err, auction.ErrAuctionNotLive),
		errors.Is(err, auction.ErrAuctionEnded),
		errors.Is(err, auction.ErrInvalidTransition):
		return fail(c, fiber.StatusConflict, err)
	case errors.Is(err, auction.ErrBelowMinimum),
		errors.Is(err, auction.ErrNotHigherThanCurrent),
		errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, auction.ErrInvalidTerms),
		errors.Is(err, auction.ErrProxyMaxTooLow):
		return fail(c, fiber.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("unhandled error", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":  "internal_error",
			"error": "internal error",
		})
	}
}

func fail(c *fiber.Ctx, status int, err error) error {
	code := "rejected"
	for sentinel, s := range errorCodes {
		if errors.Is(err, sentinel) {
			code = s
			break
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"code":  code,
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"code":  "bad_request",
		"error": msg,
	})
}
