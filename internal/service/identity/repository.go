package identity

import (
	"context"
	"time"

	"github.com/rivio/ranking-server/internal/domain"
)

// SessionSeed carries a pre-minted session into a repository transaction.
// The service mints the refresh token first so only its keyed hash ever
// reaches the database.
type SessionSeed struct {
	ID          string
	UserID      string
	RefreshHash string
	ExpiresAt   time.Time
}

// RegisterSeed is everything the registration transaction needs: the
// presented OTP hash for consumption, the pre-hashed password, pre-minted
// ids, and a bounded list of alias candidates tried in order.
type RegisterSeed struct {
	Kind             domain.ContactKind
	Value            string
	PresentedOTPHash string
	PasswordHash     string
	UserID           string
	AliasCandidates  []string
	Session          SessionSeed
}

// ContactChangeSeed starts an OTP-gated contact change.
type ContactChangeSeed struct {
	ID        string
	UserID    string
	Kind      domain.ContactKind
	NewValue  string
	CodeHash  string
	ExpiresAt time.Time
}

// Repository defines the data access contract for identity flows.
// Implementations must be safe for concurrent use.
type Repository interface {
	// LatestOTP returns the most recent row for (kind, value, purpose),
	// consumed or not. Returns ErrOTPNotFound when none exists.
	LatestOTP(ctx context.Context, kind domain.ContactKind, value string, purpose domain.OTPPurpose) (*domain.AuthOTP, error)

	// CreateOTP inserts a new one-time code row.
	CreateOTP(ctx context.Context, otp *domain.AuthOTP) error

	// IdentityByContact resolves an auth identity by channel. Returns
	// ErrNotFound when the contact is unknown.
	IdentityByContact(ctx context.Context, kind domain.ContactKind, value string) (*domain.AuthIdentity, error)

	// HasCredential reports whether the user has a password set.
	HasCredential(ctx context.Context, userID string) (bool, error)

	// Register runs the whole registration transaction: consume OTP
	// (attempt accounting included), create user, identity, credential,
	// profile with the first free alias candidate, session, and audit row.
	Register(ctx context.Context, seed RegisterSeed) error

	// UserByID loads a user. Returns ErrNotFound when absent.
	UserByID(ctx context.Context, id string) (*domain.User, error)

	// CredentialHash returns the stored bcrypt hash. ErrNotFound when the
	// user has no credential.
	CredentialHash(ctx context.Context, userID string) (string, error)

	// CountLoginFailures counts failed attempts for a throttle key since
	// the given instant.
	CountLoginFailures(ctx context.Context, keyHash string, since time.Time) (int, error)

	// RecordLoginAttempt appends one throttle-window row.
	RecordLoginAttempt(ctx context.Context, keyHash string, success bool) error

	// CreateSession inserts a session and touches last_login_at.
	CreateSession(ctx context.Context, seed SessionSeed, touchLogin bool) error

	// RotateSession atomically replaces a session: row-locks the old one,
	// verifies ownership, liveness and the presented hash, then marks it
	// rotated and inserts the replacement. Returns ErrSessionInvalid or
	// ErrSessionRevoked.
	RotateSession(ctx context.Context, sessionID, userID, presentedHash string, next SessionSeed) error

	// RevokeSession marks one session revoked. Missing or already-revoked
	// sessions are not an error.
	RevokeSession(ctx context.Context, sessionID, userID, reason string) error

	// ResetPassword consumes the latest password_reset OTP for the contact,
	// upserts the credential, and revokes every live session.
	ResetPassword(ctx context.Context, kind domain.ContactKind, value, presentedOTPHash, newPasswordHash string) (userID string, err error)

	// LatestContactChange returns the most recent change request for
	// (user, kind). ErrOTPNotFound when none exists.
	LatestContactChange(ctx context.Context, userID string, kind domain.ContactKind) (*domain.ContactChange, error)

	// CreateContactChange inserts a pending change request.
	CreateContactChange(ctx context.Context, seed ContactChangeSeed) error

	// ConfirmContactChange consumes the latest change request (attempt
	// accounting included) and moves the identity plus the user mirror
	// column to the new value. Returns ErrContactInUse on collision.
	ConfirmContactChange(ctx context.Context, userID string, kind domain.ContactKind, presentedHash string) (newValue string, err error)

	// OpenDeletionRequest returns the active (not cancelled, not executed)
	// request for the user, or ErrNoDeletionRequest.
	OpenDeletionRequest(ctx context.Context, userID string) (*domain.AccountDeletionRequest, error)

	// CreateDeletionRequest inserts the request and flips the user to
	// pending_deletion in one transaction.
	CreateDeletionRequest(ctx context.Context, req *domain.AccountDeletionRequest) error

	// CancelDeletionRequest cancels the open request and restores the user
	// to active. Returns ErrNoDeletionRequest when there is none.
	CancelDeletionRequest(ctx context.Context, userID string) error
}
