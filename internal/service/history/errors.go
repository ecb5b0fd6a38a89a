package history

import "errors"

// Sentinel errors for the history service layer.
var (
	// ErrNotFound doubles as the hidden-profile answer so enumeration
	// cannot distinguish private from nonexistent.
	ErrNotFound       = errors.New("history not available")
	ErrForbiddenScope = errors.New("scope pending/all is only allowed for self history")
	ErrInvalidLadder  = errors.New("ladder must be HM, WM, or MX")
	ErrInvalidRange   = errors.New("date_from cannot exceed date_to")
)
