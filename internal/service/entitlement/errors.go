package entitlement

import "errors"

var (
	// ErrNotFound is returned when no entitlement row exists and one
	// could not be created.
	ErrNotFound = errors.New("entitlement: not found")

	// ErrInvalidPlan is returned for an unknown plan code.
	ErrInvalidPlan = errors.New("entitlement: invalid plan code")

	// ErrSimulateDisabled is returned when plan simulation is requested
	// outside a development environment.
	ErrSimulateDisabled = errors.New("entitlement: simulation disabled")
)
