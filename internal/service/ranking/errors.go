package ranking

import "errors"

// Sentinel errors for the ranking service layer.
var (
	ErrInvalidLadder    = errors.New("ladder must be HM, WM, or MX")
	ErrInvalidCountry   = errors.New("country must be ISO-2")
	ErrCityNeedsCountry = errors.New("city filter requires country")
)
