package domain

import "time"

// OTPPurpose scopes a one-time code to the flow that requested it.
type OTPPurpose string

const (
	PurposeRegister      OTPPurpose = "register"
	PurposePasswordReset OTPPurpose = "password_reset"
	PurposeContactChange OTPPurpose = "contact_change"
)

// Valid reports whether p is a known OTP purpose.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposePasswordReset, PurposeContactChange:
		return true
	}
	return false
}

// OTPMaxAttempts is the hard cap on wrong-code attempts per issued code.
const OTPMaxAttempts = 5

// AuthOTP is a one-time code issued to a contact. Only the most recent
// unconsumed row per (kind, value, purpose) is eligible for verification.
type AuthOTP struct {
	ID           string      `json:"id" db:"id"`
	ContactKind  ContactKind `json:"contact_kind" db:"contact_kind"`
	ContactValue string      `json:"contact_value" db:"contact_value"`
	Purpose      OTPPurpose  `json:"purpose" db:"purpose"`
	CodeHash     string      `json:"-" db:"code_hash"`
	ExpiresAt    time.Time   `json:"expires_at" db:"expires_at"`
	Attempts     int         `json:"attempts" db:"attempts"`
	ConsumedAt   *time.Time  `json:"consumed_at,omitempty" db:"consumed_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// AuthSession is a rotating refresh session. Usable iff RevokedAt is nil,
// the deadline has not passed, and the stored hash matches the presented
// token. Rotation links the replacement via ReplacedBy.
type AuthSession struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	RefreshHash   string     `json:"-" db:"refresh_hash"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason *string    `json:"revoked_reason,omitempty" db:"revoked_reason"`
	ReplacedBy    *string    `json:"replaced_by,omitempty" db:"replaced_by"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the session can still mint access tokens at now.
// Hash comparison happens separately, against the presented token.
func (s AuthSession) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Session revocation reasons.
const (
	RevokedRotated        = "rotated"
	RevokedLogout         = "logout"
	RevokedPasswordReset  = "password_reset"
	RevokedAccountDeleted = "account_deleted"
)

// ContactChange is an OTP-gated request to move a user to a new contact
// value. Latest-row semantics per (user_id, contact_kind).
type ContactChange struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	ContactKind     ContactKind `json:"contact_kind" db:"contact_kind"`
	NewContactValue string      `json:"new_contact_value" db:"new_contact_value"`
	CodeHash        string      `json:"-" db:"code_hash"`
	ExpiresAt       time.Time   `json:"expires_at" db:"expires_at"`
	Attempts        int         `json:"attempts" db:"attempts"`
	ConsumedAt      *time.Time  `json:"consumed_at,omitempty" db:"consumed_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// TokenPair is the minted credential set returned by register, login, and
// refresh.
type TokenPair struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"-"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
