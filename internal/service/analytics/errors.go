package analytics

import "errors"

var (
	// ErrNotFound is returned when the target user does not exist, or
	// exists but is not visible to the caller.
	ErrNotFound = errors.New("analytics: user not found")

	// ErrInvalidLadder is returned for an unknown ladder filter.
	ErrInvalidLadder = errors.New("analytics: invalid ladder code")

	// ErrPlanRequired is returned when the dashboard is requested on a
	// plan that does not include it.
	ErrPlanRequired = errors.New("analytics: feature requires an upgraded plan")
)
