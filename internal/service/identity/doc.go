// Package identity implements account lifecycle and session management:
// OTP issuance and consumption, registration, password login with attempt
// throttling, rotating refresh sessions, password reset, contact changes,
// and scheduled account deletion.
//
// The service layer owns validation and credential hashing; multi-step
// writes (register, rotate, reset) run as single transactions inside the
// repository. It depends on repository interfaces defined in this package
// and should never import from api/.
package identity
