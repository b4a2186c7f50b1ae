package auction

import "errors"

// Errors returned by the bid acceptance pipeline and admin operations.
// All are synchronous, typed rejections; only ErrAuctionBusy is
// retryable without side effects.
var (
	ErrAuctionNotLive       = errors.New("auction is not live")
	ErrAuctionEnded         = errors.New("auction has ended")
	ErrBelowMinimum         = errors.New("bid is below minimum")
	ErrNotHigherThanCurrent = errors.New("bid does not raise your current high bid")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrAuctionBusy          = errors.New("auction is busy, retry with the same idempotency key")
	ErrInvalidAmount        = errors.New("amount must be a positive number of minor currency units")
	ErrInvalidTerms         = errors.New("invalid auction terms")
	ErrProxyMaxTooLow       = errors.New("proxy maximum is not above the current high bid")
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrInvalidTransition    = errors.New("invalid state transition")

	// ErrInvariantViolation marks a "should never happen" internal bug.
	// The owning machine halts rather than continue with corrupt state.
	ErrInvariantViolation = errors.New("auction invariant violated")
)
