package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rivio/ranking-server/internal/audit"
	"github.com/rivio/ranking-server/internal/domain"
	"github.com/rivio/ranking-server/internal/service/identity"
)

// IdentityRepo implements identity.Repository against PostgreSQL.
type IdentityRepo struct{ db *sql.DB }

// NewIdentityRepo creates a Postgres-backed identity repository.
func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{db: db} }

func (r *IdentityRepo) LatestOTP(ctx context.Context, kind domain.ContactKind, value string, purpose domain.OTPPurpose) (*domain.AuthOTP, error) {
	otp := &domain.AuthOTP{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, contact_kind, contact_value, purpose, code_hash,
		       expires_at, attempts, consumed_at, created_at
		FROM auth_otps
		WHERE contact_kind = $1 AND contact_value = $2 AND purpose = $3
		ORDER BY created_at DESC
		LIMIT 1
	`, kind, value, purpose).Scan(
		&otp.ID, &otp.ContactKind, &otp.ContactValue, &otp.Purpose, &otp.CodeHash,
		&otp.ExpiresAt, &otp.Attempts, &otp.ConsumedAt, &otp.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, identity.ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest otp: %w", err)
	}
	return otp, nil
}

func (r *IdentityRepo) CreateOTP(ctx context.Context, otp *domain.AuthOTP) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_otps (id, contact_kind, contact_value, purpose, code_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, otp.ID, otp.ContactKind, otp.ContactValue, otp.Purpose, otp.CodeHash, otp.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create otp: %w", err)
	}
	return nil
}

func (r *IdentityRepo) IdentityByContact(ctx context.Context, kind domain.ContactKind, value string) (*domain.AuthIdentity, error) {
	id := &domain.AuthIdentity{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, value, is_verified, verified_at, created_at
		FROM auth_identities
		WHERE kind = $1 AND lower(value) = lower($2)
	`, kind, value).Scan(
		&id.ID, &id.UserID, &id.Kind, &id.Value, &id.IsVerified, &id.VerifiedAt, &id.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity by contact: %w", err)
	}
	return id, nil
}

func (r *IdentityRepo) HasCredential(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM auth_credentials WHERE user_id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has credential: %w", err)
	}
	return exists, nil
}

// consumeOTPTx locks and consumes the latest code for the contact. Wrong
// codes burn an attempt inside the same transaction scope via a direct
// update so the counter survives the caller's rollback path being taken
// by a separate statement.
func consumeOTPTx(ctx context.Context, tx *sql.Tx, kind domain.ContactKind, value string, purpose domain.OTPPurpose, presentedHash string) error {
	var (
		id         string
		codeHash   string
		expiresAt  time.Time
		attempts   int
		consumedAt sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, code_hash, expires_at, attempts, consumed_at
		FROM auth_otps
		WHERE contact_kind = $1 AND contact_value = $2 AND purpose = $3
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, kind, value, purpose).Scan(&id, &codeHash, &expiresAt, &attempts, &consumedAt)
	if err == sql.ErrNoRows {
		return identity.ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("lock otp: %w", err)
	}

	switch {
	case consumedAt.Valid:
		return identity.ErrOTPAlreadyUsed
	case time.Now().After(expiresAt):
		return identity.ErrOTPExpired
	case attempts >= domain.OTPMaxAttempts:
		return identity.ErrOTPTooManyAttempts
	}

	if codeHash != presentedHash {
		if _, uerr := tx.ExecContext(ctx, `
			UPDATE auth_otps SET attempts = attempts + 1 WHERE id = $1
		`, id); uerr != nil {
			return fmt.Errorf("burn otp attempt: %w", uerr)
		}
		return identity.ErrOTPInvalidCode
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_otps SET attempts = attempts + 1, consumed_at = now() WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

func insertSessionTx(ctx context.Context, tx *sql.Tx, seed identity.SessionSeed) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO auth_sessions (id, user_id, refresh_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, seed.ID, seed.UserID, seed.RefreshHash, seed.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *IdentityRepo) Register(ctx context.Context, seed identity.RegisterSeed) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := consumeOTPTx(ctx, tx, seed.Kind, seed.Value, domain.PurposeRegister, seed.PresentedOTPHash); err != nil {
			return err
		}

		phoneCol, emailCol := sql.NullString{}, sql.NullString{}
		if seed.Kind == domain.ContactPhone {
			phoneCol = sql.NullString{String: seed.Value, Valid: true}
		} else {
			emailCol = sql.NullString{String: seed.Value, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, phone_e164, email, status)
			VALUES ($1, $2, $3, 'active')
		`, seed.UserID, phoneCol, emailCol); err != nil {
			if uniqueViolation(err, "") {
				return identity.ErrContactInUse
			}
			return fmt.Errorf("insert user: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_identities (user_id, kind, value, is_verified, verified_at)
			VALUES ($1, $2, $3, true, now())
		`, seed.UserID, seed.Kind, seed.Value); err != nil {
			if uniqueViolation(err, "auth_identities") {
				return identity.ErrContactInUse
			}
			return fmt.Errorf("insert identity: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_credentials (user_id, password_hash)
			VALUES ($1, $2)
		`, seed.UserID, seed.PasswordHash); err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}

		alias := ""
		for _, candidate := range seed.AliasCandidates {
			var taken bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM user_profiles WHERE lower(alias) = lower($1))
			`, candidate).Scan(&taken); err != nil {
				return fmt.Errorf("check alias candidate: %w", err)
			}
			if !taken {
				alias = candidate
				break
			}
		}
		if alias == "" {
			return fmt.Errorf("alias candidates exhausted")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, alias)
			VALUES ($1, $2)
		`, seed.UserID, alias); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}

		if err := insertSessionTx(ctx, tx, seed.Session); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET last_login_at = now() WHERE id = $1
		`, seed.UserID); err != nil {
			return fmt.Errorf("touch last login: %w", err)
		}

		return audit.Append(ctx, tx, seed.UserID, "user", seed.UserID, "registered", map[string]interface{}{
			"contact_kind": string(seed.Kind),
			"alias":        alias,
		})
	})
}

func (r *IdentityRepo) UserByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, phone_e164, email, status, created_at, last_login_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Phone, &u.Email, &u.Status, &u.CreatedAt, &u.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

func (r *IdentityRepo) CredentialHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT password_hash FROM auth_credentials WHERE user_id = $1
	`, userID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", identity.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential hash: %w", err)
	}
	return hash, nil
}

func (r *IdentityRepo) CountLoginFailures(ctx context.Context, keyHash string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM auth_login_attempts
		WHERE key_hash = $1 AND success = false AND created_at >= $2
	`, keyHash, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return n, nil
}

func (r *IdentityRepo) RecordLoginAttempt(ctx context.Context, keyHash string, success bool) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_login_attempts (key_hash, success) VALUES ($1, $2)
	`, keyHash, success); err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

func (r *IdentityRepo) CreateSession(ctx context.Context, seed identity.SessionSeed, touchLogin bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertSessionTx(ctx, tx, seed); err != nil {
			return err
		}
		if touchLogin {
			if _, err := tx.ExecContext(ctx, `
				UPDATE users SET last_login_at = now() WHERE id = $1
			`, seed.UserID); err != nil {
				return fmt.Errorf("touch last login: %w", err)
			}
		}
		return nil
	})
}

func (r *IdentityRepo) RotateSession(ctx context.Context, sessionID, userID, presentedHash string, next identity.SessionSeed) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			ownerID     string
			refreshHash string
			expiresAt   time.Time
			revokedAt   sql.NullTime
		)
		err := tx.QueryRowContext(ctx, `
			SELECT user_id, refresh_hash, expires_at, revoked_at
			FROM auth_sessions
			WHERE id = $1
			FOR UPDATE
		`, sessionID).Scan(&ownerID, &refreshHash, &expiresAt, &revokedAt)
		if err == sql.ErrNoRows {
			return identity.ErrSessionInvalid
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		switch {
		case ownerID != userID:
			return identity.ErrSessionInvalid
		case revokedAt.Valid:
			return identity.ErrSessionRevoked
		case time.Now().After(expiresAt):
			return identity.ErrSessionInvalid
		case refreshHash != presentedHash:
			return identity.ErrSessionInvalid
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_sessions
			SET revoked_at = now(), revoked_reason = $2, replaced_by = $3
			WHERE id = $1
		`, sessionID, domain.RevokedRotated, next.ID); err != nil {
			return fmt.Errorf("revoke rotated session: %w", err)
		}
		return insertSessionTx(ctx, tx, next)
	})
}

func (r *IdentityRepo) RevokeSession(ctx context.Context, sessionID, userID, reason string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE auth_sessions
		SET revoked_at = now(), revoked_reason = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`, sessionID, userID, reason); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *IdentityRepo) ResetPassword(ctx context.Context, kind domain.ContactKind, value, presentedOTPHash, newPasswordHash string) (string, error) {
	var userID string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT user_id FROM auth_identities
			WHERE kind = $1 AND lower(value) = lower($2)
		`, kind, value).Scan(&userID)
		if err == sql.ErrNoRows {
			return identity.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("identity for reset: %w", err)
		}

		if err := consumeOTPTx(ctx, tx, kind, value, domain.PurposePasswordReset, presentedOTPHash); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_credentials (user_id, password_hash)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, updated_at = now()
		`, userID, newPasswordHash); err != nil {
			return fmt.Errorf("upsert credential: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_sessions
			SET revoked_at = now(), revoked_reason = $2
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID, domain.RevokedPasswordReset); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}

		return audit.Append(ctx, tx, userID, "user", userID, "password_reset", nil)
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (r *IdentityRepo) LatestContactChange(ctx context.Context, userID string, kind domain.ContactKind) (*domain.ContactChange, error) {
	cc := &domain.ContactChange{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, contact_kind, new_contact_value, code_hash,
		       expires_at, attempts, consumed_at, created_at
		FROM contact_change_requests
		WHERE user_id = $1 AND contact_kind = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, kind).Scan(
		&cc.ID, &cc.UserID, &cc.ContactKind, &cc.NewContactValue, &cc.CodeHash,
		&cc.ExpiresAt, &cc.Attempts, &cc.ConsumedAt, &cc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, identity.ErrOTPNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest contact change: %w", err)
	}
	return cc, nil
}

func (r *IdentityRepo) CreateContactChange(ctx context.Context, seed identity.ContactChangeSeed) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_change_requests (id, user_id, contact_kind, new_contact_value, code_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, seed.ID, seed.UserID, seed.Kind, seed.NewValue, seed.CodeHash, seed.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create contact change: %w", err)
	}
	return nil
}

func (r *IdentityRepo) ConfirmContactChange(ctx context.Context, userID string, kind domain.ContactKind, presentedHash string) (string, error) {
	var newValue string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			id         string
			codeHash   string
			expiresAt  time.Time
			attempts   int
			consumedAt sql.NullTime
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, new_contact_value, code_hash, expires_at, attempts, consumed_at
			FROM contact_change_requests
			WHERE user_id = $1 AND contact_kind = $2
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE
		`, userID, kind).Scan(&id, &newValue, &codeHash, &expiresAt, &attempts, &consumedAt)
		if err == sql.ErrNoRows {
			return identity.ErrOTPNotFound
		}
		if err != nil {
			return fmt.Errorf("lock contact change: %w", err)
		}

		switch {
		case consumedAt.Valid:
			return identity.ErrOTPAlreadyUsed
		case time.Now().After(expiresAt):
			return identity.ErrOTPExpired
		case attempts >= domain.OTPMaxAttempts:
			return identity.ErrOTPTooManyAttempts
		}
		if codeHash != presentedHash {
			if _, uerr := tx.ExecContext(ctx, `
				UPDATE contact_change_requests SET attempts = attempts + 1 WHERE id = $1
			`, id); uerr != nil {
				return fmt.Errorf("burn change attempt: %w", uerr)
			}
			return identity.ErrOTPInvalidCode
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE contact_change_requests
			SET attempts = attempts + 1, consumed_at = now()
			WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("consume contact change: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_identities
			SET value = $3, is_verified = true, verified_at = now()
			WHERE user_id = $1 AND kind = $2
		`, userID, kind, newValue); err != nil {
			if uniqueViolation(err, "auth_identities") {
				return identity.ErrContactInUse
			}
			return fmt.Errorf("move identity: %w", err)
		}

		mirror := "email"
		if kind == domain.ContactPhone {
			mirror = "phone_e164"
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE users SET %s = $2 WHERE id = $1
		`, mirror), userID, newValue); err != nil {
			if uniqueViolation(err, "users") {
				return identity.ErrContactInUse
			}
			return fmt.Errorf("mirror contact: %w", err)
		}

		return audit.Append(ctx, tx, userID, "user", userID, "contact_changed", map[string]interface{}{
			"contact_kind": string(kind),
		})
	})
	if err != nil {
		return "", err
	}
	return newValue, nil
}

func (r *IdentityRepo) OpenDeletionRequest(ctx context.Context, userID string) (*domain.AccountDeletionRequest, error) {
	req := &domain.AccountDeletionRequest{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, reason, requested_at, scheduled_for, cancelled_at, executed_at, created_by
		FROM account_deletion_requests
		WHERE user_id = $1 AND cancelled_at IS NULL AND executed_at IS NULL
		ORDER BY requested_at DESC
		LIMIT 1
	`, userID).Scan(
		&req.ID, &req.UserID, &req.Reason, &req.RequestedAt, &req.ScheduledFor,
		&req.CancelledAt, &req.ExecutedAt, &req.CreatedBy,
	)
	if err == sql.ErrNoRows {
		return nil, identity.ErrNoDeletionRequest
	}
	if err != nil {
		return nil, fmt.Errorf("open deletion request: %w", err)
	}
	return req, nil
}

func (r *IdentityRepo) CreateDeletionRequest(ctx context.Context, req *domain.AccountDeletionRequest) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_deletion_requests (id, user_id, reason, requested_at, scheduled_for, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, req.ID, req.UserID, req.Reason, req.RequestedAt, req.ScheduledFor, req.CreatedBy); err != nil {
			return fmt.Errorf("insert deletion request: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET status = $2 WHERE id = $1
		`, req.UserID, domain.UserPendingDeletion); err != nil {
			return fmt.Errorf("flag pending deletion: %w", err)
		}
		return audit.Append(ctx, tx, req.UserID, "user", req.UserID, "deletion_requested", map[string]interface{}{
			"scheduled_for": req.ScheduledFor,
		})
	})
}

func (r *IdentityRepo) CancelDeletionRequest(ctx context.Context, userID string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `
			UPDATE account_deletion_requests
			SET cancelled_at = now()
			WHERE user_id = $1 AND cancelled_at IS NULL AND executed_at IS NULL
			RETURNING id
		`, userID).Scan(&id)
		if err == sql.ErrNoRows {
			return identity.ErrNoDeletionRequest
		}
		if err != nil {
			return fmt.Errorf("cancel deletion request: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET status = $2 WHERE id = $1
		`, userID, domain.UserActive); err != nil {
			return fmt.Errorf("restore user status: %w", err)
		}
		return audit.Append(ctx, tx, userID, "user", userID, "deletion_cancelled", nil)
	})
}
