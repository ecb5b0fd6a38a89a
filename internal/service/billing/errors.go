package billing

import "errors"

var (
	// ErrInvalidProvider is returned for an unknown provider code.
	ErrInvalidProvider = errors.New("billing: invalid provider")

	// ErrInvalidPlan is returned for an unknown plan code.
	ErrInvalidPlan = errors.New("billing: invalid plan code")

	// ErrInvalidStatus is returned for an unknown subscription status.
	ErrInvalidStatus = errors.New("billing: invalid subscription status")

	// ErrBadSignature is returned when a webhook signature is missing,
	// stale, or does not match.
	ErrBadSignature = errors.New("billing: invalid webhook signature")

	// ErrInvalidEvent is returned when a webhook payload lacks an event
	// id or type after normalization.
	ErrInvalidEvent = errors.New("billing: invalid webhook event")

	// ErrUnmappedProduct is returned when a store product id has no plan
	// mapping configured.
	ErrUnmappedProduct = errors.New("billing: product id not mapped to a plan")

	// ErrCheckoutUnsupported is returned when the configured provider
	// cannot create hosted checkout sessions.
	ErrCheckoutUnsupported = errors.New("billing: checkout not supported by provider")

	// ErrStoreUnavailable is returned when a store validation backend is
	// not configured or unreachable.
	ErrStoreUnavailable = errors.New("billing: store validation unavailable")

	// ErrInvalidReceipt is returned when the store rejects the receipt or
	// purchase token.
	ErrInvalidReceipt = errors.New("billing: invalid receipt")

	// ErrSimulateDisabled is returned when simulation or manual
	// reconciliation is requested outside a development environment.
	ErrSimulateDisabled = errors.New("billing: simulation disabled")
)
