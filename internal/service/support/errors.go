package support

import "errors"

var (
	// ErrDisabled is returned when in-app tickets are switched off.
	ErrDisabled = errors.New("support: tickets disabled")

	// ErrInvalidTicket is returned for out-of-range subject, message, or
	// category values.
	ErrInvalidTicket = errors.New("support: invalid ticket")

	// ErrDailyLimit is returned when the user hit the daily ticket cap.
	ErrDailyLimit = errors.New("support: daily ticket limit reached")

	// ErrTooSoon is returned when the user must wait before opening
	// another ticket.
	ErrTooSoon = errors.New("support: wait before creating another ticket")
)
