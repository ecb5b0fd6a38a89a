package identity

import "errors"

// Sentinel errors for the identity service layer.
var (
	ErrInvalidContact     = errors.New("invalid contact")
	ErrInvalidPurpose     = errors.New("invalid otp purpose")
	ErrOTPCooldown        = errors.New("otp requested too recently")
	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPAlreadyUsed     = errors.New("otp already used")
	ErrOTPExpired         = errors.New("otp expired")
	ErrOTPTooManyAttempts = errors.New("too many otp attempts")
	ErrOTPInvalidCode     = errors.New("invalid otp code")
	ErrAlreadyRegistered  = errors.New("contact already registered")
	ErrContactInUse       = errors.New("contact already in use")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginThrottled     = errors.New("too many failed login attempts")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrNotFound           = errors.New("not found")
	ErrNoDeletionRequest  = errors.New("no open deletion request")
)
